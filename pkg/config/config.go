// Package config loads skillhub settings from flags, SKILLHUB_* environment
// variables and an optional config.yaml.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/telemetry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// EnvPrefix is the prefix of every environment override, e.g.
// SKILLHUB_SERVER_PORT or SKILLHUB_AUTO_REJECT_DELAY.
const EnvPrefix = "SKILLHUB"

// ServerConfig is the HTTP listener and the address CLI commands dial.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	URL         string   `mapstructure:"url"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AutoRejectConfig configures the deferred auto-rejection policy.
type AutoRejectConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Trigger string        `mapstructure:"trigger"`
	Delay   time.Duration `mapstructure:"delay"`
	Notes   string        `mapstructure:"notes"`
}

// ImportConfig configures remote skill imports.
type ImportConfig struct {
	Proxy       string        `mapstructure:"proxy"`
	ClawHubAPI  string        `mapstructure:"clawhub_api"`
	GitHubToken string        `mapstructure:"github_token"`
	Attempts    uint          `mapstructure:"attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBytes    int64         `mapstructure:"max_bytes"`
}

// ReviewLogConfig enables the SQLite audit trail when Path is set.
type ReviewLogConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the decoded configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Schema     string           `mapstructure:"schema"`
	Role       string           `mapstructure:"role"`
	SeedFile   string           `mapstructure:"seed_file"`
	StagesFile string           `mapstructure:"stages_file"`
	AutoReject AutoRejectConfig `mapstructure:"auto_reject"`
	Import     ImportConfig     `mapstructure:"import"`
	ReviewLog  ReviewLogConfig  `mapstructure:"review_log"`
	Tracing    telemetry.Config `mapstructure:"tracing"`

	// Profile names an entry of Profiles whose settings override the rest.
	Profile  string                            `mapstructure:"profile"`
	Profiles map[string]map[string]interface{} `mapstructure:"profiles"`
}

// SetDefaults registers every key with its default so environment overrides
// resolve even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("schema", string(evaluation.Safety5))
	v.SetDefault("role", "employee")
	v.SetDefault("seed_file", "")
	v.SetDefault("stages_file", "")

	v.SetDefault("auto_reject.enabled", true)
	v.SetDefault("auto_reject.trigger", registry.DefaultTrigger)
	v.SetDefault("auto_reject.delay", registry.DefaultAutoRejectDelay)
	v.SetDefault("auto_reject.notes", registry.DefaultAutoRejectNotes)

	v.SetDefault("import.proxy", importer.DefaultProxy)
	v.SetDefault("import.clawhub_api", importer.DefaultClawHubAPI)
	v.SetDefault("import.github_token", "")
	v.SetDefault("import.attempts", importer.DefaultAttempts)
	v.SetDefault("import.delay", importer.DefaultRetryDelay)
	v.SetDefault("import.timeout", importer.DefaultTimeout)
	v.SetDefault("import.max_bytes", importer.DefaultMaxBytes)

	v.SetDefault("review_log.path", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "skillhub")
	v.SetDefault("tracing.sampler", "always")
	v.SetDefault("tracing.sampler_ratio", 1.0)

	v.SetDefault("profile", "")
}

// New returns a viper instance wired to the environment and the standard
// config file locations.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.skillhub")
	v.AddConfigPath(".")

	SetDefaults(v)
	return v
}

// ReadFile reads the config file viper finds, or the explicit path when set.
// A missing file in the search path is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load decodes v, applies the active profile and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if cfg.Profile != "" {
		profile, ok := cfg.Profiles[strings.ToLower(cfg.Profile)]
		if !ok {
			return cfg, errors.Errorf("unknown profile %q", cfg.Profile)
		}
		if err := applyProfile(&cfg, profile); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyProfile(cfg *Config, profile map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ZeroFields:       false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}
	if err := decoder.Decode(profile); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}
	return nil
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	if _, err := evaluation.Lookup(c.Schema); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("invalid log format %q, expected text or json", c.Log.Format)
	}
	if _, ok := skills.ParseRole(c.Role); !ok {
		return errors.Errorf("invalid role %q, expected employee or admin", c.Role)
	}
	if err := validateHost(c.Server.Host); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.AutoReject.Delay < 0 {
		return errors.Errorf("auto_reject.delay must not be negative, got %s", c.AutoReject.Delay)
	}
	if c.Import.Attempts == 0 {
		return errors.New("import.attempts must be at least 1")
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("host cannot be empty")
	}
	if host == "localhost" || net.ParseIP(host) != nil {
		return nil
	}
	if strings.ContainsAny(host, " :") {
		return errors.Errorf("invalid host: %s", host)
	}
	return nil
}

// ListenAddr is the host:port the server binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// DefaultRole is the parsed Role, falling back to employee.
func (c Config) DefaultRole() skills.Role {
	if r, ok := skills.ParseRole(c.Role); ok {
		return r
	}
	return skills.RoleEmployee
}

// EvaluationSchema resolves the configured schema name.
func (c Config) EvaluationSchema() evaluation.Schema {
	s, err := evaluation.Lookup(c.Schema)
	if err != nil {
		return evaluation.Default()
	}
	return s
}

// Policy returns the auto-rejection policy for schema, and false when the
// policy is disabled.
func (c AutoRejectConfig) Policy(schema evaluation.Schema) (registry.AutoRejectPolicy, bool) {
	if !c.Enabled {
		return registry.AutoRejectPolicy{}, false
	}
	p := registry.DefaultAutoRejectPolicy(schema)
	p.Trigger = c.Trigger
	p.Delay = c.Delay
	if c.Notes != "" {
		p.Notes = c.Notes
	}
	return p, true
}
