package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"sheetsync/internal/core"
)

// TemplatesKey is the key sync templates are stored under.
const TemplatesKey = "sync_templates"

var ErrTemplateNotFound = errors.New("template not found")

// Template is a named, reusable sync target.
type Template struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Target    core.SyncTarget `json:"target"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ListTemplates returns templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]Template, error) {
	raw, ok, err := s.Get(ctx, TemplatesKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Template{}, nil
	}
	templates, err := decodeTemplates(raw)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(templates, func(a, b Template) int { return cmp.Compare(a.Name, b.Name) })
	return templates, nil
}

// GetTemplate returns one template or ErrTemplateNotFound.
func (s *Store) GetTemplate(ctx context.Context, id string) (Template, error) {
	templates, err := s.ListTemplates(ctx)
	if err != nil {
		return Template{}, err
	}
	i := slices.IndexFunc(templates, func(t Template) bool { return t.ID == id })
	if i < 0 {
		return Template{}, ErrTemplateNotFound
	}
	return templates[i], nil
}

// SaveTemplate inserts or replaces a template.
func (s *Store) SaveTemplate(ctx context.Context, tpl Template) (Template, error) {
	if tpl.ID == "" {
		tpl.ID = core.NewID()
	}
	if tpl.Target.SpreadsheetToken == "" {
		return Template{}, &core.ValidationError{Field: "spreadsheetToken", Message: "is required"}
	}
	now := s.now()
	tpl.UpdatedAt = now
	err := s.update(ctx, TemplatesKey, func(old []byte) ([]byte, error) {
		templates := []Template{}
		if old != nil {
			var err error
			if templates, err = decodeTemplates(old); err != nil {
				return nil, err
			}
		}
		i := slices.IndexFunc(templates, func(t Template) bool { return t.ID == tpl.ID })
		if i < 0 {
			tpl.CreatedAt = now
			templates = append(templates, tpl)
		} else {
			tpl.CreatedAt = templates[i].CreatedAt
			templates[i] = tpl
		}
		return json.Marshal(templates)
	})
	if err != nil {
		return Template{}, fmt.Errorf("save template: %w", err)
	}
	return tpl, nil
}

// DeleteTemplate removes a template or returns ErrTemplateNotFound.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.update(ctx, TemplatesKey, func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, ErrTemplateNotFound
		}
		templates, err := decodeTemplates(old)
		if err != nil {
			return nil, err
		}
		n := len(templates)
		templates = slices.DeleteFunc(templates, func(t Template) bool { return t.ID == id })
		if len(templates) == n {
			return nil, ErrTemplateNotFound
		}
		return json.Marshal(templates)
	})
}

// ResolveTarget implements core.TargetResolver. An unknown template yields nil, nil.
func (s *Store) ResolveTarget(ctx context.Context, templateID string) (*core.SyncTarget, error) {
	tpl, err := s.GetTemplate(ctx, templateID)
	if errors.Is(err, ErrTemplateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	target := tpl.Target
	return &target, nil
}

func decodeTemplates(raw []byte) ([]Template, error) {
	var templates []Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("decode %s: %w", TemplatesKey, err)
	}
	if templates == nil {
		templates = []Template{}
	}
	return templates, nil
}
