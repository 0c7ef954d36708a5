// Package config loads agent settings from defaults, an optional config
// file, a .env file, PRINT_AGENT_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "PRINT_AGENT"
	appDir    = "PrintAgentService"
)

type HTTP struct {
	Addr string
}

type Log struct {
	Debug bool
	Dir   string
}

type Printer struct {
	Backend      string
	LPDAddr      string
	LPDQueue     string
	SerialBaud   int
	PaperWidthMM int
}

type Image struct {
	MaxWidth  int
	Threshold int
	MaxPixels int
}

type Render struct {
	Mode          string
	PageWidth     int
	LogoMaxWidth  int
	FontPath      string
	FontSize      float64
	LineHeight    int
	PaddingTop    int
	PaddingBottom int
	LogoSpacing   int
	MarginLeft    int
	SpoolDir      string
	RetainPages   bool
}

type Config struct {
	HTTP    HTTP
	DataDir string
	Log     Log
	Printer Printer
	Image   Image
	Render  Render
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", "0.0.0.0:8000")
	v.SetDefault("data.dir", defaultDataDir())
	v.SetDefault("log.debug", false)
	v.SetDefault("log.dir", "")

	v.SetDefault("printer.backend", "auto")
	v.SetDefault("printer.lpd.addr", "")
	v.SetDefault("printer.lpd.queue", "lp")
	v.SetDefault("printer.serial.baud", 9600)
	v.SetDefault("printer.paper_width_mm", 58)

	v.SetDefault("image.max_width", 384)
	v.SetDefault("image.threshold", 190)
	v.SetDefault("image.max_pixels", 40_000_000)

	v.SetDefault("render.mode", "raw")
	v.SetDefault("render.page_width", 384)
	v.SetDefault("render.logo_max_width", 256)
	v.SetDefault("render.font_path", "")
	v.SetDefault("render.font_size", 14)
	v.SetDefault("render.line_height", 18)
	v.SetDefault("render.padding_top", 20)
	v.SetDefault("render.padding_bottom", 20)
	v.SetDefault("render.logo_spacing", 20)
	v.SetDefault("render.margin_left", 4)
	v.SetDefault("render.spool_dir", filepath.Join(os.TempDir(), "print-agent"))
	v.SetDefault("render.retain_pages", false)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+strings.ToLower(appDir))
	}
	return appDir
}

// Load parses args (without the program name) and builds the Config.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("print-agent", pflag.ContinueOnError)
	cfgFile := flags.String("config", "", "config file (yaml, json or toml)")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.Bool("debug", false, "debug logging")
	flags.String("addr", "", "HTTP listen address")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", *envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *cfgFile != "" {
		v.SetConfigFile(*cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if f := flags.Lookup("debug"); f.Changed {
		if err := v.BindPFlag("log.debug", f); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("addr"); f.Changed {
		if err := v.BindPFlag("http.addr", f); err != nil {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		HTTP:    HTTP{Addr: v.GetString("http.addr")},
		DataDir: v.GetString("data.dir"),
		Log: Log{
			Debug: v.GetBool("log.debug"),
			Dir:   v.GetString("log.dir"),
		},
		Printer: Printer{
			Backend:      strings.ToLower(v.GetString("printer.backend")),
			LPDAddr:      v.GetString("printer.lpd.addr"),
			LPDQueue:     v.GetString("printer.lpd.queue"),
			SerialBaud:   v.GetInt("printer.serial.baud"),
			PaperWidthMM: v.GetInt("printer.paper_width_mm"),
		},
		Image: Image{
			MaxWidth:  v.GetInt("image.max_width"),
			Threshold: v.GetInt("image.threshold"),
			MaxPixels: v.GetInt("image.max_pixels"),
		},
		Render: Render{
			Mode:          strings.ToLower(v.GetString("render.mode")),
			PageWidth:     v.GetInt("render.page_width"),
			LogoMaxWidth:  v.GetInt("render.logo_max_width"),
			FontPath:      v.GetString("render.font_path"),
			FontSize:      v.GetFloat64("render.font_size"),
			LineHeight:    v.GetInt("render.line_height"),
			PaddingTop:    v.GetInt("render.padding_top"),
			PaddingBottom: v.GetInt("render.padding_bottom"),
			LogoSpacing:   v.GetInt("render.logo_spacing"),
			MarginLeft:    v.GetInt("render.margin_left"),
			SpoolDir:      v.GetString("render.spool_dir"),
			RetainPages:   v.GetBool("render.retain_pages"),
		},
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = filepath.Join(cfg.DataDir, "log")
	}
	return cfg
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data.dir is empty"))
	}
	if c.Image.Threshold < 0 || c.Image.Threshold > 255 {
		errs = append(errs, fmt.Errorf("image.threshold %d not in 0..255", c.Image.Threshold))
	}
	if c.Image.MaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("image.max_width must be positive, got %d", c.Image.MaxWidth))
	}
	if c.Render.PageWidth <= 0 {
		errs = append(errs, fmt.Errorf("render.page_width must be positive, got %d", c.Render.PageWidth))
	}
	if c.Render.LineHeight <= 0 {
		errs = append(errs, fmt.Errorf("render.line_height must be positive, got %d", c.Render.LineHeight))
	}
	switch c.Render.Mode {
	case "raw", "rendered":
	default:
		errs = append(errs, fmt.Errorf("render.mode %q is not raw or rendered", c.Render.Mode))
	}
	return errors.Join(errs...)
}
