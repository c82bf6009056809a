package fieldconfig

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"leads-dashboard/internal/fields"
)

// ImportFile is the YAML layout accepted by Import:
//
//	fields:
//	  - label: Temperatura
//	    type: dropdown
//	    options:
//	      - {label: Quente, color: "#ef4444"}
type ImportFile struct {
	Fields []fields.Definition `yaml:"fields"`
}

// ParseImport decodes a field import file.
func ParseImport(r io.Reader) ([]fields.Definition, error) {
	var f ImportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse field import: %w", err)
	}
	return f.Fields, nil
}

// ImportResult reports the outcome for one imported definition.
type ImportResult struct {
	Key     string
	Created bool
	Err     error
}

// Import creates each definition in file order through Create, so keys are
// derived and column_order renumbered exactly as for interactive edits.
// A definition whose key already exists fails with ErrDuplicateKey and the
// import carries on with the next one.
func (s *Service) Import(ctx context.Context, companyID string, defs []fields.Definition) []ImportResult {
	out := make([]ImportResult, 0, len(defs))
	for _, def := range defs {
		saved, err := s.Create(ctx, companyID, def)
		key := def.Key
		if key == "" {
			key = fields.DeriveKey(def.Label)
		}
		if err != nil {
			out = append(out, ImportResult{Key: key, Err: err})
			continue
		}
		out = append(out, ImportResult{Key: saved.Key, Created: true})
	}
	return out
}
