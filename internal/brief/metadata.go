package brief

import (
	"encoding/json"
	"fmt"

	"github.com/book-expert/nightly-brief/internal/tones"
)

// Values written into every mock metadata record.
const (
	MetadataSchemaVersion = 1
	GeneratorVersion      = "mock-1"
	MetadataStatus        = "mock-generated"
	MetadataCategory      = "daily"
)

var mockSources = []string{"Mock Source A", "Mock Source B"}

// Metadata is the record stored at MetaKey. It carries the fields of both
// historical generator variants so readers of either shape keep working.
type Metadata struct {
	SchemaVersion    int      `json:"schema_version"`
	Date             string   `json:"date"`
	UTC              string   `json:"utc"`
	Title            string   `json:"title"`
	Tone             string   `json:"tone"`
	Sources          []string `json:"sources"`
	Category         string   `json:"category"`
	GeneratorVersion string   `json:"generator_version"`
	Status           string   `json:"status"`
	RunID            string   `json:"run_id"`
	AudioPath        string   `json:"audio_path"`
}

// NewMetadata builds the metadata record for a run.
func NewMetadata(rc RunContext, tone tones.Tone) Metadata {
	sources := make([]string, len(mockSources))
	copy(sources, mockSources)

	return Metadata{
		SchemaVersion:    MetadataSchemaVersion,
		Date:             rc.DateKey,
		UTC:              rc.UTC,
		Title:            "Daily mock brief " + rc.DateKey,
		Tone:             tone.Name,
		Sources:          sources,
		Category:         MetadataCategory,
		GeneratorVersion: GeneratorVersion,
		Status:           MetadataStatus,
		RunID:            rc.RunID,
		AudioPath:        rc.AudioKey(),
	}
}

// Marshal encodes the record as JSON.
func (m Metadata) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return data, nil
}
