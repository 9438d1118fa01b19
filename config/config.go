// Package config loads pipeline settings from YAML, a .env file and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/validate"
)

const EnvPrefix = "GTFSFEED_"

// Named bounding boxes usable as region presets.
var Presets = map[string]validate.BBox{
	"morocco": {MinLat: 27, MaxLat: 36, MinLon: -13, MaxLon: -1},
}

type Region struct {
	Preset string  `yaml:"preset" validate:"omitempty,oneof=morocco"`
	MinLat float64 `yaml:"min_lat" validate:"gte=-90,lte=90"`
	MaxLat float64 `yaml:"max_lat" validate:"gte=-90,lte=90"`
	MinLon float64 `yaml:"min_lon" validate:"gte=-180,lte=180"`
	MaxLon float64 `yaml:"max_lon" validate:"gte=-180,lte=180"`
}

type FeedWindow struct {
	Start string `yaml:"start" validate:"omitempty,len=8,numeric"`
	End   string `yaml:"end" validate:"omitempty,len=8,numeric"`
}

type Config struct {
	Region              *Region    `yaml:"region"`
	FeedWindow          FeedWindow `yaml:"feed_window"`
	Strict              bool       `yaml:"strict"`
	ZeroWeekdaySeverity string     `yaml:"zero_weekday_severity" validate:"oneof=warning fatal"`
	MaxSpeedKmh         float64    `yaml:"max_speed_kmh" validate:"gte=0"`
	MaxParentDistanceKm float64    `yaml:"max_parent_distance_km" validate:"gte=0"`
	Workers             int        `yaml:"workers" validate:"gte=0,lte=1024"`
	FeedVersion         string     `yaml:"feed_version"`
}

func Default() *Config {
	return &Config{
		ZeroWeekdaySeverity: "warning",
		MaxSpeedKmh:         350,
		MaxParentDistanceKm: 1,
	}
}

// Reads config from path, then applies environment overrides. An empty
// path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Unknown keys are rejected, as they're most likely typos.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(c)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Loads a .env file into the process environment without overriding
// variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Overrides settings from GTFSFEED_* variables. Empty values are
// ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("STRICT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSTRICT: %w", EnvPrefix, err)
		}
		c.Strict = b
	}
	if v, ok := get("REGION"); ok {
		c.Region = &Region{Preset: v}
	}
	if v, ok := get("FEED_START"); ok {
		c.FeedWindow.Start = v
	}
	if v, ok := get("FEED_END"); ok {
		c.FeedWindow.End = v
	}
	if v, ok := get("FEED_VERSION"); ok {
		c.FeedVersion = v
	}
	if v, ok := get("ZERO_WEEKDAY_SEVERITY"); ok {
		c.ZeroWeekdaySeverity = v
	}
	if v, ok := get("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"MAX_SPEED_KMH", &c.MaxSpeedKmh},
		{"MAX_PARENT_DISTANCE_KM", &c.MaxParentDistanceKm},
	} {
		if v, ok := get(f.name); ok {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
			}
			*f.dst = x
		}
	}

	return nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Region != nil && c.Region.Preset == "" {
		r := c.Region
		if r.MinLat > r.MaxLat || r.MinLon > r.MaxLon {
			return fmt.Errorf("invalid config: region min exceeds max")
		}
	}

	for _, d := range []string{c.FeedWindow.Start, c.FeedWindow.End} {
		if d == "" {
			continue
		}
		if _, err := model.ParseDate(d); err != nil {
			return fmt.Errorf("invalid config: feed_window: %w", err)
		}
	}
	if c.FeedWindow.Start != "" && c.FeedWindow.End != "" && c.FeedWindow.Start > c.FeedWindow.End {
		return fmt.Errorf("invalid config: feed_window start %s is after end %s", c.FeedWindow.Start, c.FeedWindow.End)
	}

	return nil
}

// The configured region, or nil if none.
func (c *Config) BBox() *validate.BBox {
	if c.Region == nil {
		return nil
	}
	if c.Region.Preset != "" {
		box := Presets[c.Region.Preset]
		return &box
	}
	return &validate.BBox{
		MinLat: c.Region.MinLat,
		MaxLat: c.Region.MaxLat,
		MinLon: c.Region.MinLon,
		MaxLon: c.Region.MaxLon,
	}
}

func (c *Config) Window() validate.Window {
	return validate.Window{Start: c.FeedWindow.Start, End: c.FeedWindow.End}
}

func (c *Config) Policy() validate.Policy {
	p := validate.DefaultPolicy()
	if c.ZeroWeekdaySeverity == "fatal" {
		p.ZeroWeekday = model.SeverityFatal
	}
	return p
}
