package processor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/doctype"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

// Batch is a YAML file of keyword jobs:
//
//	jobs:
//	  - onbase_id: "2284804"
//	    document_type: "SPCL - Deed"
//	    values:
//	      agent_name: "Occom, Samson"
type Batch struct {
	Jobs []BatchJob `yaml:"jobs"`
}

type BatchJob struct {
	ID           string            `yaml:"id"`
	OnbaseID     string            `yaml:"onbase_id"`
	DocumentType string            `yaml:"document_type"`
	Values       map[string]string `yaml:"values"`
}

func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}
	return ParseBatch(data)
}

func ParseBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}
	for i, job := range b.Jobs {
		if job.OnbaseID == "" {
			return nil, fmt.Errorf("batch job %d has no onbase_id", i)
		}
		if job.DocumentType == "" {
			return nil, fmt.Errorf("batch job %d has no document_type", i)
		}
	}
	return &b, nil
}

// KeywordJobs expands every batch entry through the registry. Jobs without
// an id are named after prefix and their position.
func (b *Batch) KeywordJobs(prefix string, r *doctype.Registry, t *keywords.Translator) ([]models.KeywordJob, error) {
	jobs := make([]models.KeywordJob, 0, len(b.Jobs))
	for i, entry := range b.Jobs {
		values := make(map[keywords.Name]string, len(entry.Values))
		for name, v := range entry.Values {
			if _, err := t.Translate(keywords.Name(name)); err != nil {
				return nil, fmt.Errorf("batch job %d: %w", i, err)
			}
			values[keywords.Name(name)] = v
		}

		pairs, err := r.Keywords(entry.DocumentType, values, t)
		if err != nil {
			return nil, fmt.Errorf("batch job %d: %w", i, err)
		}

		id := entry.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", prefix, i)
		}
		jobs = append(jobs, models.KeywordJob{
			ID:       id,
			OnbaseID: entry.OnbaseID,
			Keywords: pairs,
			Status:   models.JobPending,
		})
	}
	return jobs, nil
}
