package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	MailDisabled = ""
	MailLog      = "log"
	MailSMTP     = "smtp"
	MailSES      = "ses"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr        string
		Environment string
		CORSOrigins []string
		// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
		// are believed. Empty means the client IP is the TCP peer.
		TrustedProxies []string
	}
	Auth struct {
		SessionSecret string
		BcryptCost    int
	}
	Database struct {
		Driver string
		Path   string
	}
	RateLimit struct {
		Window   time.Duration
		Limit    int
		MaxKeys  int
		RedisURL string
	}
	Mail struct {
		Provider     string
		From         string
		SMTPHost     string
		SMTPPort     int
		SMTPUsername string
		SMTPPassword string
		SMTPTimeout  time.Duration
		// SESRegion overrides the AWS region resolved from the environment.
		SESRegion   string
		BaseURL     string
		PublicHost  string
		PreviewHost string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// .env never overrides variables that are already set
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ARUBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.corsorigins", []string{})
	v.SetDefault("server.trustedproxies", []string{})
	v.SetDefault("auth.sessionsecret", "")
	v.SetDefault("auth.bcryptcost", 12)
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.path", "data/aruba.db")
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.limit", 5)
	v.SetDefault("ratelimit.maxkeys", 10000)
	v.SetDefault("ratelimit.redisurl", "")
	v.SetDefault("mail.provider", MailDisabled)
	v.SetDefault("mail.from", "no-reply@localhost")
	v.SetDefault("mail.smtphost", "")
	v.SetDefault("mail.smtpport", 587)
	v.SetDefault("mail.smtpusername", "")
	v.SetDefault("mail.smtppassword", "")
	v.SetDefault("mail.smtptimeout", 10*time.Second)
	v.SetDefault("mail.sesregion", "")
	v.SetDefault("mail.sesendpoint", "")
	v.SetDefault("mail.baseurl", "")
	v.SetDefault("mail.publichost", "")
	v.SetDefault("mail.previewhost", "")

	// plain names used by common hosting setups
	_ = v.BindEnv("auth.sessionsecret", "ARUBA_AUTH_SESSIONSECRET", "SESSION_SECRET")
	_ = v.BindEnv("ratelimit.redisurl", "ARUBA_RATELIMIT_REDISURL", "REDIS_URL")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)
	cfg.Server.Environment = strings.ToLower(strings.TrimSpace(cfg.Server.Environment))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Mail.Provider = strings.ToLower(strings.TrimSpace(cfg.Mail.Provider))

	return cfg, nil
}

// Validate reports the first setting that prevents the server from starting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		return errors.New("auth session secret is required (ARUBA_AUTH_SESSIONSECRET or SESSION_SECRET)")
	}
	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("unknown environment %q", c.Server.Environment)
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("trusted proxy %q is not an IP or CIDR", p)
		}
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Mail.Provider {
	case MailDisabled, MailLog:
	case MailSMTP:
		if strings.TrimSpace(c.Mail.SMTPHost) == "" {
			return errors.New("mail smtp host is required for the smtp provider")
		}
	case MailSES:
		if strings.TrimSpace(c.Mail.From) == "" {
			return errors.New("mail from address is required for the ses provider")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit and window must be positive")
	}
	return nil
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool {
	return c.Server.Environment == EnvProduction
}

func validProxy(p string) bool {
	if strings.Contains(p, "/") {
		_, _, err := net.ParseCIDR(p)
		return err == nil
	}
	return net.ParseIP(p) != nil
}

// splitList accepts both list values and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
