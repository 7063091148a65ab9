package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
)

// FilePlanner reads a plan from disk on every call, so the file can be
// edited between passes. YAML files are converted to JSON.
type FilePlanner struct {
	path string
}

// NewFilePlanner returns a planner backed by path (.json, .yaml or .yml).
func NewFilePlanner(path string) *FilePlanner {
	return &FilePlanner{path: path}
}

// Path returns the plan file location.
func (p *FilePlanner) Path() string {
	return p.path
}

// Plan returns the file contents as JSON.
func (p *FilePlanner) Plan(ctx context.Context, _ ir.Record, _ memory.Snapshot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".yaml", ".yml":
		return YAMLToJSON(data)
	}
	return data, nil
}

// YAMLToJSON re-encodes a YAML document as JSON. Timestamps stay strings.
func YAMLToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse yaml plan: %w", err)
	}
	return ToJSON(v)
}

// ToJSON encodes a value decoded from YAML as JSON.
func ToJSON(v any) ([]byte, error) {
	out, err := json.Marshal(jsonable(v))
	if err != nil {
		return nil, fmt.Errorf("encode plan as json: %w", err)
	}
	return out, nil
}

// jsonable rewrites the map[any]any values yaml produces for non-string
// keys into map[string]any.
func jsonable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonable(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = jsonable(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = jsonable(val)
		}
		return t
	}
	return v
}
