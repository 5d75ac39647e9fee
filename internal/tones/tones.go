// Package tones loads tone definitions from disk and selects the tone for a run.
package tones

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultName is the tone used when none is requested or the requested one is unknown.
const DefaultName = "Anchor Calm"

const nameField = "name"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var (
	// ErrNameMissing indicates a tone file without a usable name field.
	ErrNameMissing = errors.New("tone has no name")
	// ErrUnsupportedFormat indicates a file extension the loader does not parse.
	ErrUnsupportedFormat = errors.New("unsupported tone file format")
)

// Tone is a named tone definition. Fields holds the full parsed record,
// including the name.
type Tone struct {
	Name   string
	Fields map[string]any
}

// Set maps tone names to their definitions.
type Set map[string]Tone

// Names returns the tone names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// LoadDir reads every supported tone file in dir. Files that cannot be parsed
// or lack a name are skipped with a warning. A missing directory yields an
// empty set.
func LoadDir(dir string, log *logger.Logger) (Set, error) {
	set := make(Set)

	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return set, nil
	}

	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("Tone directory %s does not exist, no tones loaded", trimmed)

			return set, nil
		}

		return nil, fmt.Errorf("failed to read tone directory %s: %w", trimmed, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isToneFile(entry.Name()) {
			continue
		}

		path := filepath.Join(trimmed, entry.Name())

		tone, loadErr := LoadFile(path)
		if loadErr != nil {
			log.Warn("Skipping tone file %s: %v", path, loadErr)

			continue
		}

		set[tone.Name] = tone
	}

	return set, nil
}

// LoadFile parses a single tone file.
func LoadFile(path string) (Tone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tone{}, fmt.Errorf("failed to read tone file: %w", err)
	}

	return Parse(filepath.Ext(path), data)
}

// Parse decodes a tone record in the format named by ext (".json", ".yaml",
// ".yml" or ".toml"). A UTF-8 byte-order mark is ignored.
func Parse(ext string, data []byte) (Tone, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	fields := make(map[string]any)

	var err error

	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, &fields)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fields)
	case ".toml":
		err = toml.Unmarshal(data, &fields)
	default:
		return Tone{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err != nil {
		return Tone{}, fmt.Errorf("failed to parse tone: %w", err)
	}

	name, ok := fields[nameField].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return Tone{}, ErrNameMissing
	}

	return Tone{Name: name, Fields: fields}, nil
}

// Select resolves the tone for a run. An empty request means DefaultName.
// Unknown names fall back to DefaultName from the set, and when that is
// absent too, to a record that carries only the default name.
func Select(set Set, requested string) Tone {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		requested = DefaultName
	}

	if tone, ok := set[requested]; ok {
		return tone
	}

	if tone, ok := set[DefaultName]; ok {
		return tone
	}

	return Tone{
		Name:   DefaultName,
		Fields: map[string]any{nameField: DefaultName},
	}
}

func isToneFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".toml":
		return true
	default:
		return false
	}
}
