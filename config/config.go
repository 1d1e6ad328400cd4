// Package config loads settings from .env, the environment and an optional
// fundi.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fundi-booker/booking"
	"fundi-booker/client"
)

// ErrMissingConfig is returned when a required key has no value.
var ErrMissingConfig = errors.New("missing required configuration")

// RunKeys are required for a booking run.
var RunKeys = []string{"EMAIL", "PASSWORD", "MONGO_URL", "ACCOUNT_CODE"}

// ClassEntry is one item of the classes list in fundi.yaml.
type ClassEntry struct {
	Day  string `mapstructure:"dia"`
	Time string `mapstructure:"hora"`
	Name string `mapstructure:"nombre"`
}

type Config struct {
	Email       string `mapstructure:"EMAIL"`
	Password    string `mapstructure:"PASSWORD"`
	MongoURL    string `mapstructure:"MONGO_URL"`
	AccountCode string `mapstructure:"ACCOUNT_CODE"`

	FirstName    string `mapstructure:"FIRST_NAME"`
	LastName     string `mapstructure:"LAST_NAME"`
	ContactEmail string `mapstructure:"CONTACT_EMAIL"`

	BaseURL  string `mapstructure:"BASE_URL"`
	Center   string `mapstructure:"CENTER"`
	Timezone string `mapstructure:"TIMEZONE"`

	WindowOffset    time.Duration `mapstructure:"WINDOW_OFFSET"`
	AttemptDeadline time.Duration `mapstructure:"ATTEMPT_DEADLINE"`
	RetryInterval   time.Duration `mapstructure:"RETRY_INTERVAL"`
	MaxWait         time.Duration `mapstructure:"MAX_WAIT"`
	LoginLead       time.Duration `mapstructure:"LOGIN_LEAD"`
	StopAfterFirst  bool          `mapstructure:"STOP_AFTER_FIRST"`
	RunBudget       time.Duration `mapstructure:"RUN_BUDGET"`
	RecordHeld      bool          `mapstructure:"RECORD_HELD"`
	History         time.Duration `mapstructure:"HISTORY"`
	DryRun          bool          `mapstructure:"DRY_RUN"`

	ProxyURL          string  `mapstructure:"PROXY_URL"`
	BrowserTLS        bool    `mapstructure:"BROWSER_TLS"`
	RequestsPerSecond float64 `mapstructure:"REQUESTS_PER_SECOND"`

	ReportFile string `mapstructure:"REPORT_FILE"`
	Env        string `mapstructure:"ENV"`

	Classes []ClassEntry `mapstructure:"classes"`
}

// Load reads .env (if present), then fundi.yaml from "." or "./config", or
// file when given. Environment variables win over the file.
func Load(file string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(".env")

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("fundi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ContactEmail == "" {
		cfg.ContactEmail = cfg.Email
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := booking.DefaultPolicy()
	site := client.DefaultSite()

	for _, k := range []string{"EMAIL", "PASSWORD", "MONGO_URL", "ACCOUNT_CODE",
		"FIRST_NAME", "LAST_NAME", "CONTACT_EMAIL", "PROXY_URL", "REPORT_FILE"} {
		v.SetDefault(k, "")
	}
	v.SetDefault("BASE_URL", site.BaseURL)
	v.SetDefault("CENTER", site.CenterTitle)
	v.SetDefault("TIMEZONE", "Europe/Madrid")

	v.SetDefault("WINDOW_OFFSET", def.WindowOffset)
	v.SetDefault("ATTEMPT_DEADLINE", def.AttemptDeadline)
	v.SetDefault("RETRY_INTERVAL", def.RetryInterval)
	v.SetDefault("MAX_WAIT", def.MaxWait)
	v.SetDefault("LOGIN_LEAD", def.LoginLead)
	v.SetDefault("STOP_AFTER_FIRST", def.StopAfterFirst)
	v.SetDefault("RUN_BUDGET", def.RunBudget)
	v.SetDefault("RECORD_HELD", def.RecordHeld)
	v.SetDefault("HISTORY", def.History)
	v.SetDefault("DRY_RUN", false)

	v.SetDefault("BROWSER_TLS", false)
	v.SetDefault("REQUESTS_PER_SECOND", 4.0)
	v.SetDefault("ENV", "development")
}

// Validate checks that keys have values, and that the timing knobs make
// sense.
func (c *Config) Validate(keys ...string) error {
	values := map[string]string{
		"EMAIL":        c.Email,
		"PASSWORD":     c.Password,
		"MONGO_URL":    c.MongoURL,
		"ACCOUNT_CODE": c.AccountCode,
	}
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(values[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	switch {
	case c.AttemptDeadline <= 0:
		return fmt.Errorf("ATTEMPT_DEADLINE must be positive, got %s", c.AttemptDeadline)
	case c.RetryInterval <= 0:
		return fmt.Errorf("RETRY_INTERVAL must be positive, got %s", c.RetryInterval)
	case c.WindowOffset < 0:
		return fmt.Errorf("WINDOW_OFFSET must not be negative, got %s", c.WindowOffset)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Schedule returns the configured classes, or the built-in weekly plan
// when none are listed.
func (c *Config) Schedule() ([]booking.ClassDefinition, error) {
	if len(c.Classes) == 0 {
		return booking.DefaultSchedule(), nil
	}
	out := make([]booking.ClassDefinition, 0, len(c.Classes))
	for i, e := range c.Classes {
		def, err := booking.NewClass(e.Day, e.Time, e.Name)
		if err != nil {
			return nil, fmt.Errorf("classes[%d]: %w", i, err)
		}
		out = append(out, def)
	}
	return out, nil
}

func (c *Config) Policy() booking.Policy {
	return booking.Policy{
		WindowOffset:    c.WindowOffset,
		AttemptDeadline: c.AttemptDeadline,
		RetryInterval:   c.RetryInterval,
		MaxWait:         c.MaxWait,
		LoginLead:       c.LoginLead,
		StopAfterFirst:  c.StopAfterFirst,
		RunBudget:       c.RunBudget,
		RecordHeld:      c.RecordHeld,
		History:         c.History,
		DryRun:          c.DryRun,
	}
}

func (c *Config) Site() client.Site {
	s := client.DefaultSite()
	s.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	s.CenterTitle = c.Center
	return s
}

func (c *Config) ClientOptions() client.Options {
	return client.Options{
		ProxyURL:          c.ProxyURL,
		BrowserTLS:        c.BrowserTLS,
		RequestsPerSecond: c.RequestsPerSecond,
		AccountCode:       c.AccountCode,
		DryRun:            c.DryRun,
	}
}

func (c *Config) Credentials() client.Credentials {
	return client.Credentials{Email: c.Email, Password: c.Password}
}

func (c *Config) Profile() client.Profile {
	return client.Profile{Name: c.FirstName, Surname: c.LastName, Email: c.ContactEmail}
}
