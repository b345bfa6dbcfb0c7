package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/pranshuparmar/whosock/internal/logging"
	"github.com/pranshuparmar/whosock/internal/proc"
)

// Duration is a time.Duration written as a string ("2s") in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Backend        string `toml:"backend"`
	IncludeUnowned bool   `toml:"include_unowned"`
	UnknownProcess string `toml:"unknown_process"`
	ProcPath       string `toml:"proc_path"`
	LsofPath       string `toml:"lsof_path"`
	SockstatPath   string `toml:"sockstat_path"`

	Log   LogConfig   `toml:"log"`
	Watch WatchConfig `toml:"watch"`
	Serve ServeConfig `toml:"serve"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type WatchConfig struct {
	Interval Duration `toml:"interval"`
}

type ServeConfig struct {
	Listen   string   `toml:"listen"`
	Interval Duration `toml:"interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:        proc.DefaultBackend,
		UnknownProcess: proc.UnknownProcess,
		ProcPath:       "/proc",
		LsofPath:       "lsof",
		SockstatPath:   "sockstat",
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Watch: WatchConfig{Interval: Duration(2 * time.Second)},
		Serve: ServeConfig{
			Listen:   ":9155",
			Interval: Duration(5 * time.Second),
		},
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return cfg, fmt.Errorf("config %s:%d:%d: %w", path, row, col, err)
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(proc.KnownBackends, c.Backend) {
		errs = append(errs, fmt.Errorf("backend %q: %w", c.Backend, proc.ErrUnknownBackend))
	}
	if c.UnknownProcess == "" {
		errs = append(errs, errors.New("unknown_process must not be empty"))
	}
	switch c.Log.Format {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q: must be %q or %q", c.Log.Format, logging.FormatConsole, logging.FormatJSON))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, errors.New("watch.interval must be positive"))
	}
	if c.Serve.Interval <= 0 {
		errs = append(errs, errors.New("serve.interval must be positive"))
	}
	if c.Serve.Listen == "" {
		errs = append(errs, errors.New("serve.listen must not be empty"))
	}
	return errors.Join(errs...)
}

// ProcOptions converts the backend settings for proc.New.
func (c Config) ProcOptions() proc.Options {
	return proc.Options{
		ProcPath:       c.ProcPath,
		LsofPath:       c.LsofPath,
		SockstatPath:   c.SockstatPath,
		IncludeUnowned: c.IncludeUnowned,
		UnknownProcess: c.UnknownProcess,
	}
}
