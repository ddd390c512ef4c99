// Package records keeps the client-side view of the user's daily health
// records and syncs it with the API.
package records

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/d361120041/health-log/apiclient"
	"github.com/d361120041/health-log/dates"
	"github.com/d361120041/health-log/pagination"
)

// Doer sends API requests.
type Doer interface {
	Do(ctx context.Context, r *apiclient.Request, out any) error
}

// Record is one day of logged values keyed by field name.
type Record struct {
	RecordID    int64             `json:"recordId,omitempty"`
	RecordDate  string            `json:"recordDate"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	FieldValues map[string]string `json:"fieldValues"`
}

// Store holds the current record and the loaded list.
type Store struct {
	api   Doer
	pages *pagination.State

	mu      sync.Mutex
	current *Record
	list    []Record
	err     error
	loading bool
}

// NewStore creates a Store paging search results by pageSize.
func NewStore(api Doer, pageSize int) *Store {
	return &Store{api: api, pages: pagination.New(pageSize)}
}

// FetchByDate loads the record of one day. A day without a record is
// not an error: it returns nil, nil and clears the current record.
func (s *Store) FetchByDate(ctx context.Context, date string) (*Record, error) {
	day, err := dates.Normalize(date)
	if err != nil {
		return nil, err
	}

	s.begin()
	var rec Record
	err = s.api.Do(ctx, &apiclient.Request{
		Method:     http.MethodGet,
		Path:       "/records/" + url.PathEscape(day),
		NotFoundOK: true,
	}, &rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if errors.Is(err, apiclient.ErrNotFound) {
		s.current = nil
		return nil, nil
	}
	s.err = err
	if err != nil {
		return nil, fmt.Errorf("fetch record for %s: %w", day, err)
	}
	s.current = &rec
	return cloneRecord(&rec), nil
}

// FetchList loads every record of the user.
func (s *Store) FetchList(ctx context.Context) ([]Record, error) {
	s.begin()
	var list []Record
	err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/records"}, &list)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if list == nil {
		list = []Record{}
	}
	s.list = list
	return slices.Clone(list), nil
}

// Save creates or updates the record of a day and merges the result
// into the loaded list.
func (s *Store) Save(ctx context.Context, date string, values map[string]string) (*Record, error) {
	day, err := dates.Normalize(date)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]string{}
	}

	s.begin()
	var saved Record
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/records",
		Body:   Record{RecordDate: day, FieldValues: values},
	}, &saved)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err != nil {
		return nil, fmt.Errorf("save record for %s: %w", day, err)
	}

	s.current = &saved
	idx := slices.IndexFunc(s.list, func(r Record) bool { return r.RecordDate == saved.RecordDate })
	if idx >= 0 {
		s.list[idx] = saved
	} else {
		s.list = slices.Insert(s.list, 0, saved)
	}
	return cloneRecord(&saved), nil
}

// Delete removes the record of a day.
func (s *Store) Delete(ctx context.Context, date string) error {
	day, err := dates.Normalize(date)
	if err != nil {
		return err
	}

	s.begin()
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/records/" + url.PathEscape(day),
	}, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err != nil {
		return fmt.Errorf("delete record for %s: %w", day, err)
	}

	if s.current != nil && s.current.RecordDate == day {
		s.current = nil
	}
	s.list = slices.DeleteFunc(s.list, func(r Record) bool { return r.RecordDate == day })
	return nil
}

// Current returns a copy of the current record, or nil.
func (s *Store) Current() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecord(s.current)
}

// List returns a copy of the loaded list.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.list)
}

// Err returns the error of the last call, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a call is in progress.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Pages returns a copy of the search pagination window.
func (s *Store) Pages() pagination.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.pages
}

func (s *Store) ClearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// Reset drops all loaded state, including the page window.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = nil
	s.list = nil
	s.loading = false
	s.err = nil
	s.pages.Reset()
	s.mu.Unlock()
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.FieldValues != nil {
		c.FieldValues = make(map[string]string, len(r.FieldValues))
		for k, v := range r.FieldValues {
			c.FieldValues[k] = v
		}
	}
	return &c
}
