package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a model file. Files ending in .cue are evaluated as CUE; any
// other extension (.yaml, .yml, .json) is parsed as YAML.
// The returned model has been validated.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m *Model
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		m, err = ParseCUE(data, path)
	} else {
		m, err = Parse(data)
	}
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return m, nil
}

// Parse decodes a YAML (or JSON) model. Unknown top-level and entity set
// fields are rejected to catch typos; unknown join fields are kept in
// Join.Extra because $lookup accepts more keys than this package models.
func Parse(data []byte) (*Model, error) {
	var m Model
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return &m, nil
}

// ParseCUE evaluates a CUE model. The value must be concrete; it is exported
// as JSON and decoded with Parse so both formats share one schema.
func ParseCUE(data []byte, filename string) (*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE model: %s", cueerrors.Details(err, nil))
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE model is not concrete: %s", cueerrors.Details(err, nil))
	}

	js, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE model: %w", err)
	}
	return Parse(js)
}
