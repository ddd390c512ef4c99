package records

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/d361120041/health-log/apiclient"
	"github.com/d361120041/health-log/pagination"
)

// Operator compares a column with a value.
type Operator string

const (
	OpEQ   Operator = "EQ"
	OpNE   Operator = "NE"
	OpGT   Operator = "GT"
	OpGTE  Operator = "GTE"
	OpLT   Operator = "LT"
	OpLTE  Operator = "LTE"
	OpLike Operator = "LIKE"
)

// Logic joins a condition to the previous ones.
type Logic string

const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// Where is one search condition.
type Where struct {
	IsWhere  bool     `json:"isWhere"`
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	Logic    Logic    `json:"logic"`
}

// Cond builds an AND condition.
func Cond(column string, op Operator, value string) Where {
	return Where{IsWhere: true, Column: column, Operator: op, Value: value, Logic: And}
}

// Join names an association to fetch with the search.
type Join struct {
	IsJoin bool   `json:"isJoin"`
	Join   string `json:"join"`
}

// Spec is the filter part of a search body.
type Spec struct {
	IsSpec bool    `json:"isSpec"`
	Joins  []Join  `json:"joins"`
	Wheres []Where `json:"wheres"`
}

// SearchRequest is the body of POST /records/search.
type SearchRequest struct {
	SpecObj *Spec                  `json:"specObj,omitempty"`
	PageObj pagination.PageRequest `json:"pageObj"`
}

// SearchResult is one page of records.
type SearchResult struct {
	Content []Record `json:"content"`
	pagination.Page
}

type searchResponse struct {
	Status  any           `json:"status"`
	Message string        `json:"message"`
	Data    *SearchResult `json:"data"`
}

// Search loads the current page of records matching wheres, newest
// first, and updates the page window from the response.
func (s *Store) Search(ctx context.Context, wheres ...Where) (*SearchResult, error) {
	s.mu.Lock()
	body := SearchRequest{
		PageObj: s.pages.Request(pagination.Order{Field: "recordDate", Order: "DESC"}),
	}
	s.mu.Unlock()
	if len(wheres) > 0 {
		body.SpecObj = &Spec{IsSpec: true, Joins: []Join{}, Wheres: wheres}
	}

	s.begin()
	var resp searchResponse
	err := s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/records/search",
		Body:   body,
	}, &resp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}

	result := resp.Data
	if result == nil {
		result = &SearchResult{}
	}
	if result.Content == nil {
		result.Content = []Record{}
	}
	s.list = result.Content
	s.pages.UpdateFromPage(&result.Page)

	out := *result
	out.Content = slices.Clone(result.Content)
	return &out, nil
}

// SearchPage moves to page and searches again. Out-of-range pages are
// rejected without a request.
func (s *Store) SearchPage(ctx context.Context, page int, wheres ...Where) (*SearchResult, error) {
	if !s.GoToPage(page) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return s.Search(ctx, wheres...)
}

// GoToPage moves the page window without searching.
func (s *Store) GoToPage(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.GoToPage(page)
}

// ChangePageSize sets the number of records per search page.
func (s *Store) ChangePageSize(size int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.ChangePageSize(size)
}
