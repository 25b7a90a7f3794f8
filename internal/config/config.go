package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrConfigurationMissing is returned when a required setting is absent or invalid.
var ErrConfigurationMissing = errors.New("configuration missing")

var singleConfig *Config = nil

type Config struct {
	Service    *svcConfig
	HCaptcha   *HCaptchaConfig
	Mail       *MailConfig
	Netcenter  *NetcenterConfig
	Admin      *AdminConfig
	Events     *EventsConfig
	Deployment Deployment `envconfig:"DEPLOYMENT" required:"true"`
}

type svcConfig struct {
	Address  string `envconfig:"VMREQ_ADDRESS" default:":8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HCaptchaConfig struct {
	SiteKey   string        `envconfig:"HCAPTCHA_SITEKEY" required:"true"`
	Secret    string        `envconfig:"HCAPTCHA_SECRET" required:"true"`
	VerifyURL string        `envconfig:"HCAPTCHA_VERIFY_URL" default:"https://hcaptcha.com/siteverify"`
	Timeout   time.Duration `envconfig:"CAPTCHA_TIMEOUT" default:"10s"`
}

type MailConfig struct {
	SMTPServer     string        `envconfig:"MAIL_SMTP_SERVER" required:"true"`
	SMTPPort       int           `envconfig:"MAIL_SMTP_PORT" default:"587"`
	HumanResponder string        `envconfig:"MAIL_HUMAN_RESPONDER" required:"true"`
	Sender         string        `envconfig:"MAIL_SENDER" required:"true"`
	User           string        `envconfig:"MAIL_USER" required:"true"`
	Pass           string        `envconfig:"MAIL_PASS" required:"true"`
	Timeout        time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s"`
	StartupCheck   bool          `envconfig:"SMTP_STARTUP_CHECK" default:"false"`
}

type NetcenterConfig struct {
	Host    string        `envconfig:"NETCENTER_HOST" default:"https://www.netcenter.ethz.ch"`
	User    string        `envconfig:"NETCENTER_USER"`
	Pass    string        `envconfig:"NETCENTER_PASS"`
	Timeout time.Duration `envconfig:"IPAM_TIMEOUT" default:"15s"`
}

type AdminConfig struct {
	Enabled bool   `envconfig:"ADMIN_ENABLED" default:"false"`
	Subnet  string `envconfig:"ADMIN_SUBNET" default:"192.33.91.0"`
}

// EventsConfig leaves event publishing disabled when NATSURL is empty.
type EventsConfig struct {
	NATSURL      string        `envconfig:"NATS_URL"`
	Timeout      time.Duration `envconfig:"NATS_TIMEOUT" default:"5s"`
	MaxReconnect int           `envconfig:"NATS_MAX_RECONNECT" default:"10"`
}

// New returns the process-wide configuration, loading it from the environment
// on first use.
func New() (*Config, error) {
	if singleConfig == nil {
		cfg, err := Load()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Load reads a fresh configuration from the environment.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Admin.Enabled {
		var missing []string
		if c.Netcenter.User == "" {
			missing = append(missing, "NETCENTER_USER")
		}
		if c.Netcenter.Pass == "" {
			missing = append(missing, "NETCENTER_PASS")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: admin surface enabled but %s not set", ErrConfigurationMissing, strings.Join(missing, ", "))
		}
	}
	return nil
}
