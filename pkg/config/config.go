package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

type Config struct {
	DocStore struct {
		BaseURL  string `yaml:"base_url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		LogUser  string `yaml:"log_user"`
	} `yaml:"docstore"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
	} `yaml:"database"`

	Schedule struct {
		KeywordJobIntervalSeconds int           `yaml:"keyword_job_interval_seconds"`
		DeleteUnlinkedCron        string        `yaml:"delete_unlinked_cron"`
		DeleteObsoleteCron        string        `yaml:"delete_obsolete_cron"`
		ObsoleteAfter             time.Duration `yaml:"obsolete_after"`
	} `yaml:"schedule"`

	Sweep struct {
		RateLimit float64 `yaml:"rate_limit"`
		Burst     int     `yaml:"burst"`
		BatchSize int     `yaml:"batch_size"`
	} `yaml:"sweep"`

	Keywords struct {
		// Names maps semantic keyword names to document store keyword type
		// names. Names left out fall back to the built-in table.
		Names map[string]string `yaml:"names"`
	} `yaml:"keywords"`

	Registry struct {
		// Path to a document type registry. Empty uses the built-in registry.
		Path string `yaml:"path"`
	} `yaml:"registry"`
}

// DefaultKeywordNames is the keyword type table of a stock document store
// configuration.
var DefaultKeywordNames = map[keywords.Name]string{
	keywords.AgentName:               "SPCL - Agent Name",
	keywords.ParentSystemID:          "SPCL - Parent System ID",
	keywords.AgentSystemID:           "SPCL - Agent System ID",
	keywords.LinkedRecordSystemID:    "SPCL - Linked Record System ID",
	keywords.RecordIdentifier:        "SPCL - Record Identifier",
	keywords.EventProcessingPlanDate: "SPCL - Processing Plan Date",
	keywords.AccessionDate:           "SPCL - Accession Date",
	keywords.CatalogLocation:         "SPCL - Catalog Location",
	keywords.ConservationNumber:      "SPCL - Conservation Number",
	keywords.LoanEndDate:             "SPCL - Loan End Date",
	keywords.FindingAidUseStartDate:  "SPCL - Finding Aid Use Start Date",
	keywords.FindingAidUseEndDate:    "SPCL - Finding Aid Use End Date",
	keywords.ExampleAlpha20:          "Example Alpha 20",
	keywords.ExampleDate:             "Example Date",
	keywords.ExampleAlpha250:         "Example Alpha 250",
	keywords.FileName:                "SPCL - File Name",
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/aspace-onbase/config.yaml"),
			"/etc/aspace-onbase/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Database.TableName == "" {
		config.Database.TableName = "onbase_document"
	}

	if config.Schedule.ObsoleteAfter == 0 {
		config.Schedule.ObsoleteAfter = 24 * time.Hour
	}

	if config.Sweep.RateLimit == 0 {
		config.Sweep.RateLimit = 5.0
	}
	if config.Sweep.Burst == 0 {
		config.Sweep.Burst = 1
	}
	if config.Sweep.BatchSize == 0 {
		config.Sweep.BatchSize = 100
	}

	if config.Keywords.Names == nil {
		config.Keywords.Names = make(map[string]string)
	}
	for name, typeName := range DefaultKeywordNames {
		if _, ok := config.Keywords.Names[string(name)]; !ok {
			config.Keywords.Names[string(name)] = typeName
		}
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("ONBASE_ROBI_URL"); baseURL != "" {
		config.DocStore.BaseURL = baseURL
	}
	if username := os.Getenv("ONBASE_USERNAME"); username != "" {
		config.DocStore.Username = username
	}
	if password := os.Getenv("ONBASE_PASSWORD"); password != "" {
		config.DocStore.Password = password
	}
	if logUser := os.Getenv("ONBASE_LOG_USER"); logUser != "" {
		config.DocStore.LogUser = logUser
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}

// Translator builds the keyword translator from the configured name table.
func (c *Config) Translator() (*keywords.Translator, error) {
	table := make(map[keywords.Name]string, len(c.Keywords.Names))
	for name, typeName := range c.Keywords.Names {
		table[keywords.Name(name)] = typeName
	}
	return keywords.NewTranslator(table)
}

// KeywordJobInterval is the pause between keyword sync sweeps.
func (c *Config) KeywordJobInterval() time.Duration {
	return time.Duration(c.Schedule.KeywordJobIntervalSeconds) * time.Second
}
