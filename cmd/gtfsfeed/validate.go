package main

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <src>",
	Short: "Validates a feed directory, zip file or URL and prints a report",
	Args:  cobra.ExactArgs(1),
	RunE:  validateFeed,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateFeed(cmd *cobra.Command, args []string) error {
	result, err := run(cmd, args[0])
	if err != nil {
		return err
	}
	if !result.Report.Passed() {
		return ErrFailed
	}
	return nil
}
