package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsfeed"
	"tidbyt.dev/gtfsfeed/config"
)

var rootCmd = &cobra.Command{
	Use:          "gtfsfeed",
	Short:        "GTFS feed builder",
	Long:         "Validates static GTFS source data and builds canonical feeds from it",
	SilenceUsage: true,
}

// Returned when the report verdict is Fail, for a non-zero exit.
var ErrFailed = errors.New("feed failed validation")

var (
	configPath string
	strict     bool
	reportPath string
	headers    []string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&strict, "strict", "", false, "Treat warnings as fatal")
	rootCmd.PersistentFlags().StringVarP(&reportPath, "report", "r", "", "Write JSON report to this file")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header for URL sources, on form <key>:<value>",
	)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func newBuilder(cmd *cobra.Command) (*gtfsfeed.Builder, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("strict") {
		cfg.Strict = strict
	}

	b := gtfsfeed.NewBuilder(cfg)
	if verbose {
		b.Logger = log.Default()
	}

	b.FetchHeaders, err = parseHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	return b, nil
}

// Builds src, prints the report and writes it to --report if set.
func run(cmd *cobra.Command, src string) (*gtfsfeed.Result, error) {
	b, err := newBuilder(cmd)
	if err != nil {
		return nil, err
	}

	result, err := b.BuildSource(cmd.Context(), src)
	if err != nil {
		return nil, err
	}

	err = result.Report.WriteText(cmd.OutOrStdout())
	if err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return nil, fmt.Errorf("creating report: %w", err)
		}
		err = result.Report.WriteJSON(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", reportPath, err)
		}
	}

	return result, nil
}
