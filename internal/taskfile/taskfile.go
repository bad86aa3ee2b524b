// Package taskfile imports tasks and sync templates from a JSON or YAML file
// and keeps the store and the scheduler in step with it.
package taskfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"sheetsync/internal/core"
	"sheetsync/internal/store"
)

// Document is the content of a task file. A file holding a bare array is
// read as Tasks.
type Document struct {
	Tasks     []core.TaskSpec  `json:"tasks"`
	Templates []store.Template `json:"templates"`
}

// Parse reads path. Files ending in .yaml or .yml are YAML, everything else JSON.
func Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return decode(path, data)
}

func decode(path string, data []byte) (*Document, error) {
	jb, err := toJSON(path, data)
	if err != nil {
		return nil, err
	}
	jb = bytes.TrimSpace(jb)
	var doc Document
	if len(jb) > 0 && jb[0] == '[' {
		if err := json.Unmarshal(jb, &doc.Tasks); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(jb))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode task file: %w", err)
		}
	}
	for i, t := range doc.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("task %d (%q): id is required", i, t.Name)
		}
	}
	return &doc, nil
}

func toJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML makes every map key a string so the value can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return x
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
