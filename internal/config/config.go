package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/livinlefevreloca/seqtrigger/internal/marker"
	"github.com/livinlefevreloca/seqtrigger/internal/notify"
	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/internal/submitter"
	"github.com/livinlefevreloca/seqtrigger/internal/window"
)

// Config represents the application configuration
type Config struct {
	Store     statusstore.Config `toml:"store"`
	Pipeline  PipelineConfig     `toml:"pipeline"`
	Reconcile ReconcileConfig    `toml:"reconcile"`
	Notify    NotifyConfig       `toml:"notify"`
	Logging   LoggingConfig      `toml:"logging"`
}

// PipelineConfig names the downstream pipeline and its executables
type PipelineConfig struct {
	Name               string   `toml:"name"`
	ConfigGenerator    string   `toml:"config_generator"`
	MappingSubmitter   string   `toml:"mapping_submitter"`
	DependentSubmitter string   `toml:"dependent_submitter"`
	SubmitFlags        []string `toml:"submit_flags"`
	MarkerName         string   `toml:"marker_name"`
	SamplesheetName    string   `toml:"samplesheet_name"`
	LogDir             string   `toml:"log_dir"`
	SubmissionLog      string   `toml:"submission_log"`
}

// ReconcileConfig holds pass settings
type ReconcileConfig struct {
	DaysBack        int  `toml:"days_back"`
	ExclusiveMarker bool `toml:"exclusive_marker"`
}

// NotifyConfig holds escalation settings
type NotifyConfig struct {
	Mail    MailConfig    `toml:"mail"`
	Webhook WebhookConfig `toml:"webhook"`
}

// MailConfig holds mail(1) delivery settings
type MailConfig struct {
	Enabled       bool     `toml:"enabled"`
	Command       string   `toml:"command"`
	Recipients    []string `toml:"recipients"`
	SubjectPrefix string   `toml:"subject_prefix"`
}

// WebhookConfig holds webhook delivery settings
type WebhookConfig struct {
	Enabled      bool          `toml:"enabled"`
	URL          string        `toml:"url"`
	RetryMax     int           `toml:"retry_max"`
	RetryWaitMin time.Duration `toml:"retry_wait_min"`
	RetryWaitMax time.Duration `toml:"retry_wait_max"`
	Timeout      time.Duration `toml:"timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with the production defaults
func DefaultConfig() *Config {
	return &Config{
		Store: statusstore.Config{
			Driver:          "sqlite3",
			DSN:             "seqtrigger.db",
			TestingDSN:      "seqtrigger-testing.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Name:               "Mapping",
			ConfigGenerator:    "/home/userrig/Solexa/bcl2fastq2-v2.17/generateBCL2FASTQ2.17config.sh",
			MappingSubmitter:   "/home/userrig/pipelines/NewBwaMappingPipelineMem/generateBwa0.7.5aconfigurationV217V2.sh",
			DependentSubmitter: "/home/userrig/pipelines/NewRNAseqTophatCufflinksPipeline/generateTophatCufflinksconfigurationV217V2.sh",
			SubmitFlags:        []string{"-j", "0", "-p", "Production", "-c", "10"},
			MarkerName:         marker.DefaultName,
			SamplesheetName:    "samplesheet.csv",
			LogDir:             "logs",
			SubmissionLog:      "mapping_submission.log",
		},
		Reconcile: ReconcileConfig{
			DaysBack:        window.DefaultDaysBack,
			ExclusiveMarker: true,
		},
		Notify: NotifyConfig{
			Mail: MailConfig{
				Enabled:       false,
				Command:       "mail",
				SubjectPrefix: "[seqtrigger] ",
			},
			Webhook: WebhookConfig{
				Enabled:      false,
				RetryMax:     4,
				RetryWaitMin: 1 * time.Second,
				RetryWaitMax: 30 * time.Second,
				Timeout:      10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	md, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key: %s", undecoded[0])
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	return LoadFromFile(configPath)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Store validation
	switch c.Store.Driver {
	case "sqlite3", "postgres":
	case "":
		return fmt.Errorf("store driver must be specified")
	default:
		return fmt.Errorf("unsupported store driver: %s (must be sqlite3 or postgres)", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store DSN must be specified")
	}

	// Pipeline validation
	if c.Pipeline.Name == "" {
		return fmt.Errorf("pipeline name must be specified")
	}
	if c.Pipeline.ConfigGenerator == "" || c.Pipeline.MappingSubmitter == "" || c.Pipeline.DependentSubmitter == "" {
		return fmt.Errorf("pipeline config_generator, mapping_submitter and dependent_submitter must be specified")
	}
	if c.Pipeline.SamplesheetName == "" {
		return fmt.Errorf("pipeline samplesheet_name must be specified")
	}
	if c.Pipeline.SubmissionLog == "" {
		return fmt.Errorf("pipeline submission_log must be specified")
	}

	// Reconcile validation
	if c.Reconcile.DaysBack <= 0 {
		return fmt.Errorf("reconcile days_back must be positive")
	}

	// Notify validation
	if c.Notify.Mail.Enabled {
		if c.Notify.Mail.Command == "" {
			return fmt.Errorf("notify.mail command must be specified when mail is enabled")
		}
		if len(c.Notify.Mail.Recipients) == 0 {
			return fmt.Errorf("notify.mail recipients must be specified when mail is enabled")
		}
	}
	if c.Notify.Webhook.Enabled {
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook url must be specified when the webhook is enabled")
		}
		if c.Notify.Webhook.RetryMax < 0 {
			return fmt.Errorf("notify.webhook retry_max must not be negative")
		}
		if c.Notify.Webhook.RetryWaitMax < c.Notify.Webhook.RetryWaitMin {
			return fmt.Errorf("notify.webhook retry_wait_max must not be less than retry_wait_min")
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// SubmitterConfig returns the submitter settings
func (c *Config) SubmitterConfig() submitter.Config {
	return submitter.Config{
		ConfigGenerator:    c.Pipeline.ConfigGenerator,
		MappingSubmitter:   c.Pipeline.MappingSubmitter,
		DependentSubmitter: c.Pipeline.DependentSubmitter,
		SubmitFlags:        c.Pipeline.SubmitFlags,
		SamplesheetName:    c.Pipeline.SamplesheetName,
		LogDir:             c.Pipeline.LogDir,
		SubmissionLog:      c.Pipeline.SubmissionLog,
	}
}

// MailNotifierConfig returns the mail notifier settings
func (c *Config) MailNotifierConfig() notify.MailConfig {
	return notify.MailConfig{
		Command:       c.Notify.Mail.Command,
		Recipients:    c.Notify.Mail.Recipients,
		SubjectPrefix: c.Notify.Mail.SubjectPrefix,
	}
}

// WebhookNotifierConfig returns the webhook notifier settings
func (c *Config) WebhookNotifierConfig() notify.WebhookConfig {
	return notify.WebhookConfig{
		URL:          c.Notify.Webhook.URL,
		RetryMax:     c.Notify.Webhook.RetryMax,
		RetryWaitMin: c.Notify.Webhook.RetryWaitMin,
		RetryWaitMax: c.Notify.Webhook.RetryWaitMax,
		Timeout:      c.Notify.Webhook.Timeout,
	}
}
