// Package globals reads host globals for an evaluation from JSON, YAML or
// TOML documents. The top level of every document must be a mapping; each
// key becomes one global.
package globals

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format names a document syntax
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var ErrUnknownFormat = errors.New("unknown globals format")

// FormatFromPath guesses the format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// Load reads and decodes a globals file
func Load(path string) (map[string]any, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read globals: %w", err)
	}
	return Decode(format, data)
}

// Decode parses data in the given format
func Decode(format Format, data []byte) (map[string]any, error) {
	var out map[string]any
	var err error

	switch format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &out)
	case FormatYAML:
		err = yaml.Unmarshal(data, &out)
	case FormatTOML:
		err = toml.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s parse error: %w", format, err)
	}
	if out == nil {
		out = map[string]any{}
	}

	for k, v := range out {
		out[k] = plain(v)
	}
	return out, nil
}

// plain rewrites decoder-specific scalars into values the sandbox can
// transfer. Timestamps become strings; everything else passes through.
func plain(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case toml.LocalDate:
		return t.String()
	case toml.LocalTime:
		return t.String()
	case toml.LocalDateTime:
		return t.String()
	case map[string]any:
		for k, el := range t {
			t[k] = plain(el)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[fmt.Sprint(k)] = plain(el)
		}
		return out
	case []any:
		for i, el := range t {
			t[i] = plain(el)
		}
		return t
	}
	return v
}
