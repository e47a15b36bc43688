package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/sysmoni/internal/history"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
	"github.com/Dicklesworthstone/sysmoni/internal/source"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SRPS_SYSMONI_"

// SortKeys are the process table orderings, in the order the UI cycles them.
var SortKeys = []string{"cpu", "mem", "pid", "name"}

// Config carries runtime options for sysmoni.
type Config struct {
	Interval        time.Duration `yaml:"interval"         toml:"interval"         env:"INTERVAL"`
	HistoryCapacity int           `yaml:"history_capacity" toml:"history_capacity" env:"HISTORY"`
	MinResolution   time.Duration `yaml:"min_resolution"   toml:"min_resolution"   env:"MIN_RESOLUTION"`
	AdapterTimeout  time.Duration `yaml:"adapter_timeout"  toml:"adapter_timeout"  env:"ADAPTER_TIMEOUT"`
	EnableGPU       bool          `yaml:"gpu"              toml:"gpu"              env:"GPU"`
	GPUBackend      string        `yaml:"gpu_backend"      toml:"gpu_backend"      env:"GPU_BACKEND"`
	IncludeLoopback bool          `yaml:"include_loopback" toml:"include_loopback" env:"LOOPBACK"`
	Sort            string        `yaml:"sort"             toml:"sort"             env:"SORT"`
	Filter          string        `yaml:"filter"           toml:"filter"           env:"FILTER"`
	LogFile         string        `yaml:"log_file"         toml:"log_file"         env:"LOG_FILE"`
	LogLevel        string        `yaml:"log_level"        toml:"log_level"        env:"LOG_LEVEL"`
	MetricsAddr     string        `yaml:"metrics_addr"     toml:"metrics_addr"     env:"METRICS_ADDR"`

	// Output modes are per invocation and only come from flags.
	JSON       bool `yaml:"-" toml:"-"`
	JSONStream bool `yaml:"-" toml:"-"`
	Pretty     bool `yaml:"-" toml:"-"`
}

func Default() Config {
	return Config{
		Interval:        time.Second,
		HistoryCapacity: history.DefaultCapacity,
		MinResolution:   rate.DefaultResolution,
		AdapterTimeout:  400 * time.Millisecond,
		EnableGPU:       true,
		GPUBackend:      source.GPUAuto,
		Sort:            "cpu",
		LogLevel:        "info",
	}
}

// Load layers an optional config file and then SRPS_SYSMONI_* environment
// variables over the defaults. Files ending in .toml are read as TOML, any
// other as YAML. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decodeFile(path, data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix: EnvPrefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(v string) (interface{}, error) {
				return ParseInterval(v)
			},
		},
	}); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return err
		}
		return tree.Unmarshal(cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// ParseInterval accepts Go durations ("500ms") and bare numbers of seconds
// ("2", "0.5").
func ParseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate rejects settings the sampler cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.HistoryCapacity <= 0 {
		errs = append(errs, errors.New("history_capacity must be positive"))
	}
	if c.MinResolution < 0 {
		errs = append(errs, errors.New("min_resolution cannot be negative"))
	}
	if c.AdapterTimeout <= 0 {
		errs = append(errs, errors.New("adapter_timeout must be positive"))
	}
	switch c.GPUBackend {
	case source.GPUAuto, source.GPUNvidia, source.GPUAMD, source.GPUNone:
	default:
		errs = append(errs, fmt.Errorf("unknown gpu_backend %q", c.GPUBackend))
	}
	if !lo.Contains(SortKeys, c.Sort) {
		errs = append(errs, fmt.Errorf("sort must be one of %s", strings.Join(SortKeys, "|")))
	}
	if c.Filter != "" {
		if _, err := regexp.Compile(c.Filter); err != nil {
			errs = append(errs, fmt.Errorf("filter: %w", err))
		}
	}
	if c.JSON && c.JSONStream {
		errs = append(errs, errors.New("--json and --json-stream are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// RegisterFlags defines the command-line flags on fs, bound to c.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&c.Interval, "interval", c.Interval, "refresh interval")
	fs.IntVar(&c.HistoryCapacity, "history", c.HistoryCapacity, "samples kept per history series")
	fs.DurationVar(&c.AdapterTimeout, "adapter-timeout", c.AdapterTimeout, "upper bound on a single OS query")
	fs.StringVar(&c.Sort, "sort", c.Sort, "sort column: "+strings.Join(SortKeys, "|"))
	fs.StringVar(&c.Filter, "filter", c.Filter, "regex filter for process names")
	fs.BoolVar(&c.JSON, "json", c.JSON, "output one-shot JSON and exit")
	fs.BoolVar(&c.JSONStream, "json-stream", c.JSONStream, "stream NDJSON until interrupted")
	fs.BoolVar(&c.Pretty, "pretty", c.Pretty, "colorize one-shot JSON output")
	fs.BoolVar(&c.EnableGPU, "gpu", c.EnableGPU, "enable GPU sampling")
	fs.StringVar(&c.GPUBackend, "gpu-backend", c.GPUBackend, "gpu backend: auto|nvidia|amd|none")
	fs.BoolVar(&c.IncludeLoopback, "loopback", c.IncludeLoopback, "include loopback interfaces")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "log file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve sampler self-metrics on this address")
}

// ApplyFlags copies into c every field whose flag was set explicitly on fs,
// taking the value from flags. Flags therefore win over file and environment.
func (c *Config) ApplyFlags(fs *pflag.FlagSet, flags Config) {
	set := map[string]func(){
		"interval":        func() { c.Interval = flags.Interval },
		"history":         func() { c.HistoryCapacity = flags.HistoryCapacity },
		"adapter-timeout": func() { c.AdapterTimeout = flags.AdapterTimeout },
		"sort":            func() { c.Sort = flags.Sort },
		"filter":          func() { c.Filter = flags.Filter },
		"json":            func() { c.JSON = flags.JSON },
		"json-stream":     func() { c.JSONStream = flags.JSONStream },
		"pretty":          func() { c.Pretty = flags.Pretty },
		"gpu":             func() { c.EnableGPU = flags.EnableGPU },
		"gpu-backend":     func() { c.GPUBackend = flags.GPUBackend },
		"loopback":        func() { c.IncludeLoopback = flags.IncludeLoopback },
		"log-file":        func() { c.LogFile = flags.LogFile },
		"log-level":       func() { c.LogLevel = flags.LogLevel },
		"metrics-addr":    func() { c.MetricsAddr = flags.MetricsAddr },
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}

// GPU returns the backend to detect; disabling GPU sampling overrides any
// configured backend.
func (c Config) GPU() string {
	if !c.EnableGPU {
		return source.GPUNone
	}
	return c.GPUBackend
}
