package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API and scheduler processes.
// All values must come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Mail      MailConfig
	Tracking  TrackingConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is used to build tracking pixel and click-redirect links.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// MailConfig selects the outbound email provider.
// Provider: sendgrid, smtp, log
type MailConfig struct {
	Provider  string
	FromEmail string
	FromName  string

	SendGridAPIKey string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

type TrackingConfig struct {
	// SigningSecret signs click-redirect URLs so the endpoint is not an open redirect.
	SigningSecret string
}

type SchedulerConfig struct {
	SequenceSpec  string
	QueueSpec     string
	TimeBasedSpec string

	BatchSize  int
	ClaimLease time.Duration

	// RetryBackoff delays the next attempt after a failed send.
	RetryBackoff time.Duration
	// MaxSendAttempts of 0 retries forever.
	MaxSendAttempts int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	IdleTTL           time.Duration
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Mail.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("MAIL_PROVIDER")))
	c.Mail.FromEmail = strings.TrimSpace(os.Getenv("MAIL_FROM_EMAIL"))
	c.Mail.FromName = strings.TrimSpace(os.Getenv("MAIL_FROM_NAME"))
	c.Mail.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	c.Mail.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	{
		n, err := optionalInt("SMTP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Mail.SMTPPort = n
	}
	c.Mail.SMTPUser = strings.TrimSpace(os.Getenv("SMTP_USER"))
	c.Mail.SMTPPassword = os.Getenv("SMTP_PASSWORD")

	c.Tracking.SigningSecret = os.Getenv("TRACKING_SIGNING_SECRET")

	c.Scheduler.SequenceSpec = strings.TrimSpace(os.Getenv("SCHEDULER_SEQUENCE_SPEC"))
	c.Scheduler.QueueSpec = strings.TrimSpace(os.Getenv("SCHEDULER_QUEUE_SPEC"))
	c.Scheduler.TimeBasedSpec = strings.TrimSpace(os.Getenv("SCHEDULER_TIME_BASED_SPEC"))
	{
		n, err := optionalInt("SCHEDULER_BATCH_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Scheduler.BatchSize = n
	}
	{
		n, err := optionalInt("SEQUENCE_MAX_SEND_ATTEMPTS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Scheduler.MaxSendAttempts = n
	}
	c.Scheduler.ClaimLease = mustDuration("SCHEDULER_CLAIM_LEASE")
	c.Scheduler.RetryBackoff = mustDuration("SEQUENCE_RETRY_BACKOFF")

	{
		n, err := optionalInt("RATE_LIMIT_RPM")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.RateLimit.RequestsPerMinute = n
	}
	{
		n, err := optionalInt("RATE_LIMIT_BURST")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.RateLimit.Burst = n
	}
	c.RateLimit.IdleTTL = mustDuration("RATE_LIMIT_IDLE_TTL")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	errs = append(errs, c.validateMail()...)

	if c.Tracking.SigningSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("TRACKING_SIGNING_SECRET is required in production"))
		} else {
			c.Tracking.SigningSecret = c.Auth.JWTSecret
		}
	}

	if c.Scheduler.SequenceSpec == "" {
		c.Scheduler.SequenceSpec = "@every 1m"
	}
	if c.Scheduler.QueueSpec == "" {
		c.Scheduler.QueueSpec = "@every 1m"
	}
	if c.Scheduler.TimeBasedSpec == "" {
		c.Scheduler.TimeBasedSpec = "@every 15m"
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 100
	}
	if c.Scheduler.ClaimLease <= 0 {
		c.Scheduler.ClaimLease = 5 * time.Minute
	}
	if c.Scheduler.RetryBackoff <= 0 {
		c.Scheduler.RetryBackoff = 15 * time.Minute
	}
	if c.Scheduler.MaxSendAttempts < 0 {
		errs = append(errs, fmt.Errorf("SEQUENCE_MAX_SEND_ATTEMPTS must be >= 0, got %d", c.Scheduler.MaxSendAttempts))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 60
	}
	if c.RateLimit.IdleTTL <= 0 {
		c.RateLimit.IdleTTL = 10 * time.Minute
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}

	return joinErrors(errs)
}

func (c *Config) validateMail() []error {
	var errs []error
	if c.Mail.Provider == "" {
		c.Mail.Provider = "log"
	}
	switch c.Mail.Provider {
	case "log":
		if c.IsProduction() {
			errs = append(errs, errors.New("MAIL_PROVIDER=log is not allowed in production"))
		}
	case "sendgrid":
		if c.Mail.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required when MAIL_PROVIDER=sendgrid"))
		}
	case "smtp":
		if c.Mail.SMTPHost == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when MAIL_PROVIDER=smtp"))
		}
		if c.Mail.SMTPPort == 0 {
			c.Mail.SMTPPort = 587
		}
		if c.Mail.SMTPPort < 0 || c.Mail.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.Mail.SMTPPort))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_PROVIDER must be one of sendgrid, smtp, log, got %q", c.Mail.Provider))
	}
	if c.Mail.FromEmail == "" {
		if c.Mail.Provider == "log" {
			c.Mail.FromEmail = "noreply@localhost"
		} else {
			errs = append(errs, errors.New("MAIL_FROM_EMAIL is required"))
		}
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = "Emex"
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
