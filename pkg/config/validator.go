package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate document store config
	if c.DocStore.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "docstore.base_url",
			Message: "document store URL is required",
		})
	} else if u, err := url.Parse(c.DocStore.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "docstore.base_url",
			Message: "invalid document store URL",
		})
	}

	if c.DocStore.Username == "" {
		errors = append(errors, ValidationError{
			Field:   "docstore.username",
			Message: "username is required",
		})
	}

	if c.DocStore.Password == "" {
		errors = append(errors, ValidationError{
			Field:   "docstore.password",
			Message: "password is required",
		})
	}

	if c.DocStore.LogUser == "" {
		errors = append(errors, ValidationError{
			Field:   "docstore.log_user",
			Message: "log_user is required",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.TableName == "" {
		errors = append(errors, ValidationError{
			Field:   "database.table_name",
			Message: "table_name is required",
		})
	}

	// Validate Schedule config
	if c.Schedule.KeywordJobIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "schedule.keyword_job_interval_seconds",
			Message: "keyword_job_interval_seconds must be positive",
		})
	}

	for _, spec := range []struct {
		field string
		value string
	}{
		{"schedule.delete_unlinked_cron", c.Schedule.DeleteUnlinkedCron},
		{"schedule.delete_obsolete_cron", c.Schedule.DeleteObsoleteCron},
	} {
		if spec.value == "" {
			errors = append(errors, ValidationError{
				Field:   spec.field,
				Message: "cron expression is required",
			})
			continue
		}
		if _, err := cron.ParseStandard(spec.value); err != nil {
			errors = append(errors, ValidationError{
				Field:   spec.field,
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	if c.Schedule.ObsoleteAfter <= 0 {
		errors = append(errors, ValidationError{
			Field:   "schedule.obsolete_after",
			Message: "obsolete_after must be positive",
		})
	}

	// Validate Sweep config
	if c.Sweep.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sweep.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Sweep.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "sweep.burst",
			Message: "burst must be at least 1",
		})
	}

	if c.Sweep.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "sweep.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate keyword names
	if _, err := c.Translator(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "keywords.names",
			Message: err.Error(),
		})
	}

	return errors
}
