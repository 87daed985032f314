package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Raw is a decoded line - a generic key/value document
type Raw map[string]any

// Parser decodes a single line of text into a Raw document
type Parser interface {
	Parse(line []byte) (Raw, error)
}

// JSONLineParser parses each line as a single JSON object.
// Numbers are preserved as json.Number so large ids are not rounded.
type JSONLineParser struct{}

func (JSONLineParser) Parse(line []byte) (Raw, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, errors.New("empty line")
	}
	if line[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object, got '%c'", line[0])
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var raw Raw
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid JSON: trailing data after object")
	}
	return raw, nil
}
