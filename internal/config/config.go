package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/launchr/internal/env"
	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/internal/process"
	"github.com/loykin/launchr/internal/readiness"
	tlsconf "github.com/loykin/launchr/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. LAUNCHR_SERVER_LISTEN.
const EnvPrefix = "LAUNCHR"

// Readiness modes used by callers of the trigger endpoint.
const (
	ModePoll  = "poll"
	ModeDelay = "delay"
)

// Config represents the top-level TOML structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Process   ProcessConfig   `mapstructure:"process"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Log       logger.Config   `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	History   HistoryConfig   `mapstructure:"history"`
}

type ServerConfig struct {
	Listen         string         `mapstructure:"listen"`
	BasePath       string         `mapstructure:"base_path"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	TLS            tlsconf.Config `mapstructure:"tls"`
}

type ProcessConfig struct {
	Name           string            `mapstructure:"name"`
	Command        string            `mapstructure:"command"`
	WorkDir        string            `mapstructure:"work_dir"`
	Env            []string          `mapstructure:"env"`
	EnvFiles       []string          `mapstructure:"env_files"`
	UseOSEnv       bool              `mapstructure:"use_os_env"`
	URL            string            `mapstructure:"url"`
	StartDuration  time.Duration     `mapstructure:"start_duration"`
	StopTimeout    time.Duration     `mapstructure:"stop_timeout"`
	StopOnShutdown bool              `mapstructure:"stop_on_shutdown"`
	Log            logger.FileConfig `mapstructure:"log"`
}

type ReadinessConfig struct {
	Mode        string        `mapstructure:"mode"` // poll or delay
	Type        string        `mapstructure:"type"` // http, tcp, command or none
	URL         string        `mapstructure:"url"`
	Address     string        `mapstructure:"address"`
	Command     string        `mapstructure:"command"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)

	v.SetDefault("process.name", "streamlit")
	v.SetDefault("process.command", "streamlit run app.py")
	v.SetDefault("process.work_dir", "")
	v.SetDefault("process.env", []string{})
	v.SetDefault("process.env_files", []string{})
	v.SetDefault("process.use_os_env", true)
	v.SetDefault("process.url", "http://localhost:8501")
	v.SetDefault("process.start_duration", "0s")
	v.SetDefault("process.stop_timeout", "5s")
	v.SetDefault("process.stop_on_shutdown", true)
	v.SetDefault("process.log.dir", "")
	v.SetDefault("process.log.stdout", "")
	v.SetDefault("process.log.stderr", "")

	v.SetDefault("readiness.mode", ModePoll)
	v.SetDefault("readiness.type", "http")
	v.SetDefault("readiness.url", "")
	v.SetDefault("readiness.address", "")
	v.SetDefault("readiness.command", "")
	v.SetDefault("readiness.interval", "500ms")
	v.SetDefault("readiness.timeout", "60s")
	v.SetDefault("readiness.grace_period", "3s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.time", true)
	v.SetDefault("log.path", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")

	v.SetDefault("history.dsn", "")
}

// Load reads path (TOML) on top of the defaults and applies LAUNCHR_* environment overrides.
// An empty path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if path != "" {
		cfg.resolvePaths(filepath.Dir(path))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths makes relative file system paths relative to the config file,
// so the daemon behaves the same from any working directory.
func (c *Config) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.Server.TLS.Dir)
	resolve(&c.Server.TLS.CertFile)
	resolve(&c.Server.TLS.KeyFile)
	resolve(&c.Process.WorkDir)
	resolve(&c.Process.Log.Dir)
	resolve(&c.Process.Log.StdoutPath)
	resolve(&c.Process.Log.StderrPath)
	resolve(&c.Log.Path)
	for i := range c.Process.EnvFiles {
		resolve(&c.Process.EnvFiles[i])
	}
}

// Validate checks the values Load cannot fix on its own.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Process.Command) == "" {
		errs = append(errs, errors.New("process.command is required"))
	}
	if strings.TrimSpace(c.Process.Name) == "" {
		errs = append(errs, errors.New("process.name is required"))
	}
	if c.Process.URL != "" {
		if u, err := url.Parse(c.Process.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("process.url %q is not an absolute URL", c.Process.URL))
		}
	}
	if c.Process.StartDuration < 0 {
		errs = append(errs, errors.New("process.start_duration must not be negative"))
	}
	switch c.Readiness.Mode {
	case ModePoll, ModeDelay:
	default:
		errs = append(errs, fmt.Errorf("readiness.mode must be %q or %q, got %q", ModePoll, ModeDelay, c.Readiness.Mode))
	}
	switch strings.ToLower(c.Readiness.Type) {
	case "", "none", "http", "tcp", "command", "cmd":
	default:
		errs = append(errs, fmt.Errorf("unknown readiness.type %q", c.Readiness.Type))
	}
	if c.Readiness.Interval <= 0 {
		errs = append(errs, errors.New("readiness.interval must be positive"))
	}
	if c.Readiness.Timeout <= 0 {
		errs = append(errs, errors.New("readiness.timeout must be positive"))
	}
	if c.Readiness.GracePeriod < 0 {
		errs = append(errs, errors.New("readiness.grace_period must not be negative"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProcessSpec builds the fixed spec of the managed process.
func (c *Config) ProcessSpec() process.Spec {
	return process.Spec{
		Name:          c.Process.Name,
		Command:       c.Process.Command,
		WorkDir:       c.Process.WorkDir,
		Env:           c.Process.Env,
		StartDuration: c.Process.StartDuration,
		Log:           c.Process.Log,
	}
}

// Probe builds the readiness probe. It returns nil when readiness.type is "none".
// Without an explicit target the HTTP probe checks process.url and the TCP probe its host.
func (c *Config) Probe() (readiness.Probe, error) {
	r := c.Readiness
	switch strings.ToLower(r.Type) {
	case "none":
		return nil, nil
	case "", "http":
		target := r.URL
		if target == "" {
			target = c.Process.URL
		}
		return readiness.New("http", target)
	case "tcp":
		target := r.Address
		if target == "" {
			if u, err := url.Parse(c.Process.URL); err == nil {
				target = u.Host
			}
		}
		return readiness.New("tcp", target)
	default:
		return readiness.New(r.Type, r.Command)
	}
}

// Environment builds the child's base environment: the OS env when process.use_os_env is set,
// then env_files in order. process.env is applied on top by the supervisor.
func (c *Config) Environment() (*env.Env, error) {
	e := env.New(c.Process.UseOSEnv)
	for _, p := range c.Process.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		e.SetAll(pairs)
	}
	return e, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries in file order.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
			out = append(out, k+"="+v)
		}
	}
	return out, nil
}
