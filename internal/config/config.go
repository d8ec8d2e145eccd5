package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig     *AppConfig
	BrowserConfig *BrowserConfig
	OdooConfig    *OdooConfig
	RetryConfig   *RetryConfig
	UploadConfig  *UploadConfig
	MailConfig    *MailConfig
	AlertConfig   *AlertConfig
	ReportConfig  *ReportConfig
}

type AppConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool   `envconfig:"DEBUG" default:"false"`
	LogFile        string `envconfig:"LOG_FILE"`
	LogMaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" default:"20"`
	LogMaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	LogMaxAgeDays  int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`
	MetricsFile    string `envconfig:"METRICS_FILE"`
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"false"`
}

type BrowserConfig struct {
	Headless         bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo           int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout          int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	SessionStatePath string `envconfig:"BROWSER_SESSION_STATE" default:"./session/state.json"`
	DownloadDir      string `envconfig:"BROWSER_DOWNLOAD_DIR" default:"./downloads"`
	Locale           string `envconfig:"BROWSER_LOCALE" default:"en-US"`
	TimezoneID       string `envconfig:"BROWSER_TIMEZONE" default:"UTC"`
}

type OdooConfig struct {
	URL        string        `envconfig:"ODOO_URL"`
	Database   string        `envconfig:"ODOO_DB"`
	Login      string        `envconfig:"ODOO_LOGIN"`
	Password   string        `envconfig:"ODOO_PASSWORD"`
	RPCEnabled bool          `envconfig:"ODOO_RPC_ENABLED" default:"false"`
	RPCTimeout time.Duration `envconfig:"ODOO_RPC_TIMEOUT" default:"30s"`
}

// ValidateSession reports the settings a signed-in browser or RPC session
// needs. Only commands that talk to Odoo call it.
func (c *OdooConfig) ValidateSession() error {
	var missing []string

	if c.URL == "" {
		missing = append(missing, "ODOO_URL")
	}
	if c.Login == "" {
		missing = append(missing, "ODOO_LOGIN")
	}
	if c.Password == "" {
		missing = append(missing, "ODOO_PASSWORD")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing odoo settings: %s", strings.Join(missing, ", "))
	}

	return nil
}

type RetryConfig struct {
	InteractAttempts int           `envconfig:"RETRY_INTERACT_ATTEMPTS" default:"3"`
	InteractDelay    time.Duration `envconfig:"RETRY_INTERACT_DELAY" default:"1s"`
	DownloadAttempts int           `envconfig:"RETRY_DOWNLOAD_ATTEMPTS" default:"3"`
	DownloadStep     time.Duration `envconfig:"RETRY_DOWNLOAD_STEP" default:"5s"`
	DownloadMaxDelay time.Duration `envconfig:"RETRY_DOWNLOAD_MAX_DELAY" default:"15s"`
	DownloadTimeout  time.Duration `envconfig:"RETRY_DOWNLOAD_TIMEOUT" default:"120s"`
}

type UploadConfig struct {
	BaseURL       string        `envconfig:"UPLOAD_BASE_URL"`
	Token         string        `envconfig:"UPLOAD_TOKEN"`
	Timeout       time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"60s"`
	MaxElapsed    time.Duration `envconfig:"UPLOAD_MAX_ELAPSED" default:"2m"`
	RatePerSecond float64       `envconfig:"UPLOAD_RATE_PER_SECOND" default:"1"`
}

type MailConfig struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	Username string `envconfig:"SMTP_USERNAME"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM"`
	StartTLS bool   `envconfig:"SMTP_STARTTLS" default:"true"`
}

type AlertConfig struct {
	WebhookURL string        `envconfig:"ALERT_WEBHOOK_URL"`
	Recipients []string      `envconfig:"ALERT_RECIPIENTS"`
	Timeout    time.Duration `envconfig:"ALERT_TIMEOUT" default:"10s"`
}

type ReportConfig struct {
	OutputDir  string   `envconfig:"REPORT_OUTPUT_DIR" default:"./reports"`
	Title      string   `envconfig:"REPORT_TITLE" default:"Helpdesk ticket report"`
	SourceJob  string   `envconfig:"REPORT_SOURCE_JOB" default:"tickets"`
	GroupBy    []string `envconfig:"REPORT_GROUP_BY" default:"Stage,Assigned to"`
	Recipients []string `envconfig:"REPORT_RECIPIENTS"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	return &conf, nil
}
