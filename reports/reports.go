// Package reports fetches per-field analytics over a date range.
package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/d361120041/health-log/apiclient"
	"github.com/d361120041/health-log/dates"
)

// ErrMissingParams is returned when a query lacks its field or range.
var ErrMissingParams = errors.New("fieldName, startDate, and endDate are required")

// Doer sends API requests.
type Doer interface {
	Do(ctx context.Context, r *apiclient.Request, out any) error
}

// Query selects a field and an inclusive date range.
type Query struct {
	FieldName string
	StartDate string
	EndDate   string
}

func (q Query) values() (url.Values, error) {
	if strings.TrimSpace(q.FieldName) == "" || q.StartDate == "" || q.EndDate == "" {
		return nil, ErrMissingParams
	}
	start, err := dates.Normalize(q.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := dates.Normalize(q.EndDate)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"fieldName": {q.FieldName},
		"startDate": {start},
		"endDate":   {end},
	}, nil
}

// TrendPoint is one day's value of a field. Values travel as strings.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value *string `json:"value"`
}

// Statistics summarizes a numeric field. Fields are nil when the range
// holds no values.
type Statistics struct {
	Average           *float64 `json:"average"`
	Max               *float64 `json:"max"`
	Min               *float64 `json:"min"`
	Sum               *float64 `json:"sum"`
	Count             int64    `json:"count"`
	StandardDeviation *float64 `json:"standardDeviation"`
	Median            *float64 `json:"median"`
}

// NumberReport is the trend and summary of a NUMBER field.
type NumberReport struct {
	TrendData  []TrendPoint `json:"trendData"`
	Statistics *Statistics  `json:"statistics"`
}

// EnumDistribution counts the options of an ENUM field.
type EnumDistribution struct {
	Distribution map[string]int64   `json:"distribution"`
	TotalCount   int64              `json:"totalCount"`
	Percentages  map[string]float64 `json:"percentages"`
}

// EnumTrend counts the options of an ENUM field per day.
type EnumTrend struct {
	TrendData map[string]map[string]int64 `json:"trendData"`
	Options   []string                    `json:"options"`
}

// Days returns the dates of the trend in ascending order.
func (e *EnumTrend) Days() []string {
	days := make([]string, 0, len(e.TrendData))
	for d := range e.TrendData {
		days = append(days, d)
	}
	slices.Sort(days)
	return days
}

// TextAnalysis describes the entries of a TEXT field.
type TextAnalysis struct {
	KeywordFrequency map[string]int64  `json:"keywordFrequency"`
	TotalCount       int64             `json:"totalCount"`
	AverageLength    *float64          `json:"averageLength"`
	MaxLength        *int              `json:"maxLength"`
	MinLength        *int              `json:"minLength"`
	TimelineData     map[string]string `json:"timelineData"`
}

// Store holds the most recent result of each report.
type Store struct {
	api Doer

	mu               sync.Mutex
	trend            []TrendPoint
	numberReport     *NumberReport
	enumDistribution *EnumDistribution
	enumTrend        *EnumTrend
	textAnalysis     *TextAnalysis
	loading          bool
	err              error
}

func NewStore(api Doer) *Store {
	return &Store{api: api}
}

// FetchNumberReport loads the trend and statistics of a NUMBER field.
func (s *Store) FetchNumberReport(ctx context.Context, q Query) (*NumberReport, error) {
	var report NumberReport
	if err := s.get(ctx, "/reports/number", q, nil, &report); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if report.TrendData == nil {
		report.TrendData = []TrendPoint{}
	}
	s.numberReport = &report
	s.trend = report.TrendData
	return &report, nil
}

// FetchTrendData loads the daily values of a field. With includeNulls
// days without a value are returned with a nil Value.
func (s *Store) FetchTrendData(ctx context.Context, q Query, includeNulls bool) ([]TrendPoint, error) {
	var points []TrendPoint
	extra := url.Values{"includeNulls": {strconv.FormatBool(includeNulls)}}
	if err := s.get(ctx, "/reports/trend", q, extra, &points); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if points == nil {
		points = []TrendPoint{}
	}
	s.trend = points
	return slices.Clone(points), nil
}

func (s *Store) FetchEnumDistribution(ctx context.Context, q Query) (*EnumDistribution, error) {
	var dist EnumDistribution
	if err := s.get(ctx, "/reports/enum/distribution", q, nil, &dist); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.enumDistribution = &dist
	return &dist, nil
}

func (s *Store) FetchEnumTrend(ctx context.Context, q Query) (*EnumTrend, error) {
	var trend EnumTrend
	if err := s.get(ctx, "/reports/enum/trend", q, nil, &trend); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.enumTrend = &trend
	return &trend, nil
}

func (s *Store) FetchTextAnalysis(ctx context.Context, q Query) (*TextAnalysis, error) {
	var analysis TextAnalysis
	if err := s.get(ctx, "/reports/text/analysis", q, nil, &analysis); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.textAnalysis = &analysis
	return &analysis, nil
}

// get validates q, issues the query and records loading and error state.
func (s *Store) get(ctx context.Context, path string, q Query, extra url.Values, out any) error {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	query, err := q.values()
	if err == nil {
		for k, v := range extra {
			query[k] = v
		}
		err = s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: path, Query: query}, out)
		if err != nil {
			err = fmt.Errorf("fetch %s: %w", path, err)
		}
	}

	s.mu.Lock()
	s.loading = false
	s.err = err
	s.mu.Unlock()
	return err
}

// TrendData returns the last loaded trend points.
func (s *Store) TrendData() []TrendPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.trend)
}

func (s *Store) NumberReport() *NumberReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numberReport
}

func (s *Store) EnumDistribution() *EnumDistribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enumDistribution
}

func (s *Store) EnumTrend() *EnumTrend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enumTrend
}

func (s *Store) TextAnalysis() *TextAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textAnalysis
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

func (s *Store) ClearTrendData() {
	s.mu.Lock()
	s.trend = nil
	s.mu.Unlock()
}

// ClearAll drops every loaded report but keeps the error state.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.clearData()
	s.mu.Unlock()
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.clearData()
	s.loading = false
	s.err = nil
	s.mu.Unlock()
}

func (s *Store) clearData() {
	s.trend = nil
	s.numberReport = nil
	s.enumDistribution = nil
	s.enumTrend = nil
	s.textAnalysis = nil
}
