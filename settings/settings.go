// Package settings manages the field definitions that shape a record.
package settings

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/d361120041/health-log/apiclient"
)

// DataType is the kind of value a field holds.
type DataType string

const (
	TypeNumber DataType = "NUMBER"
	TypeText   DataType = "TEXT"
	TypeEnum   DataType = "ENUM"
)

// Doer sends API requests.
type Doer interface {
	Do(ctx context.Context, r *apiclient.Request, out any) error
}

// FieldSetting defines one record field.
type FieldSetting struct {
	SettingID  int64    `json:"settingId,omitempty"`
	FieldName  string   `json:"fieldName"`
	DataType   DataType `json:"dataType"`
	Unit       string   `json:"unit,omitempty"`
	IsRequired bool     `json:"isRequired"`
	Options    string   `json:"options,omitempty"`
	IsActive   bool     `json:"isActive"`
}

// OptionList splits the comma separated options of an ENUM field.
func (f FieldSetting) OptionList() []string {
	if f.Options == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(f.Options, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks v against the field definition.
func (f FieldSetting) Validate(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		if f.IsRequired {
			return fmt.Errorf("%s is required", f.FieldName)
		}
		return nil
	}
	switch f.DataType {
	case TypeNumber:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%s must be a number", f.FieldName)
		}
	case TypeEnum:
		if opts := f.OptionList(); len(opts) > 0 && !slices.Contains(opts, v) {
			return fmt.Errorf("%s must be one of %s", f.FieldName, strings.Join(opts, ", "))
		}
	}
	return nil
}

// Store holds the loaded field settings.
type Store struct {
	api Doer

	mu      sync.Mutex
	fields  []FieldSetting
	loading bool
	err     error
}

func NewStore(api Doer) *Store {
	return &Store{api: api}
}

// FetchActive loads the active fields visible to every user.
func (s *Store) FetchActive(ctx context.Context) ([]FieldSetting, error) {
	return s.fetchList(ctx, "/settings/fields")
}

// FetchAll loads every field, including inactive ones. Admin only.
func (s *Store) FetchAll(ctx context.Context) ([]FieldSetting, error) {
	return s.fetchList(ctx, "/admin/settings/fields")
}

func (s *Store) fetchList(ctx context.Context, path string) ([]FieldSetting, error) {
	var fields []FieldSetting
	err := s.call(ctx, &apiclient.Request{Method: http.MethodGet, Path: path}, &fields)
	if err != nil {
		return nil, fmt.Errorf("fetch field settings: %w", err)
	}
	if fields == nil {
		fields = []FieldSetting{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
	return slices.Clone(fields), nil
}

// FetchByID loads one field without touching the loaded list.
func (s *Store) FetchByID(ctx context.Context, id int64) (*FieldSetting, error) {
	var field FieldSetting
	if err := s.call(ctx, &apiclient.Request{Method: http.MethodGet, Path: adminPath(id)}, &field); err != nil {
		return nil, fmt.Errorf("fetch field setting %d: %w", id, err)
	}
	return &field, nil
}

// Create adds a field and reloads the full list.
func (s *Store) Create(ctx context.Context, f FieldSetting) (*FieldSetting, error) {
	var created FieldSetting
	err := s.call(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/admin/settings/fields",
		Body:   f,
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("create field setting: %w", err)
	}
	if _, err := s.FetchAll(ctx); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update replaces a field and its entry in the loaded list.
func (s *Store) Update(ctx context.Context, id int64, f FieldSetting) (*FieldSetting, error) {
	var updated FieldSetting
	err := s.call(ctx, &apiclient.Request{
		Method: http.MethodPut,
		Path:   adminPath(id),
		Body:   f,
	}, &updated)
	if err != nil {
		return nil, fmt.Errorf("update field setting %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := slices.IndexFunc(s.fields, func(fs FieldSetting) bool { return fs.SettingID == id }); idx >= 0 {
		s.fields[idx] = updated
	}
	return &updated, nil
}

// Delete removes a field. The server deactivates it.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.call(ctx, &apiclient.Request{Method: http.MethodDelete, Path: adminPath(id)}, nil); err != nil {
		return fmt.Errorf("delete field setting %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = slices.DeleteFunc(s.fields, func(fs FieldSetting) bool { return fs.SettingID == id })
	return nil
}

// ByName looks up a loaded field.
func (s *Store) ByName(name string) (FieldSetting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.fields, func(fs FieldSetting) bool { return fs.FieldName == name })
	if idx < 0 {
		return FieldSetting{}, false
	}
	return s.fields[idx], true
}

func (s *Store) Fields() []FieldSetting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.fields)
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.fields = nil
	s.loading = false
	s.err = nil
	s.mu.Unlock()
}

func (s *Store) call(ctx context.Context, r *apiclient.Request, out any) error {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	err := s.api.Do(ctx, r, out)

	s.mu.Lock()
	s.loading = false
	s.err = err
	s.mu.Unlock()
	return err
}

func adminPath(id int64) string {
	return "/admin/settings/fields/" + strconv.FormatInt(id, 10)
}
