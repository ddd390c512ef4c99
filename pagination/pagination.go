// Package pagination tracks the page window of a paged API listing.
package pagination

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 5

// Page is the page metadata returned by the API. Pointer fields are
// optional; absent ones fall back to the current state or a default.
type Page struct {
	Number           *int  `json:"number"`
	Size             *int  `json:"size"`
	TotalElements    *int  `json:"totalElements"`
	TotalPages       *int  `json:"totalPages"`
	First            *bool `json:"first"`
	Last             *bool `json:"last"`
	NumberOfElements *int  `json:"numberOfElements"`
}

// State is the pagination window. Pages are zero-based.
type State struct {
	CurrentPage      int
	PageSize         int
	TotalElements    int
	TotalPages       int
	First            bool
	Last             bool
	NumberOfElements int

	initialPageSize int
}

// New returns the initial state for the given page size.
func New(pageSize int) *State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &State{initialPageSize: pageSize}
	s.Reset()
	return s
}

// Reset restores the initial state.
func (s *State) Reset() {
	*s = State{
		CurrentPage:     0,
		PageSize:        s.initialPageSize,
		First:           true,
		Last:            false,
		initialPageSize: s.initialPageSize,
	}
}

// UpdateFromPage copies server page metadata. A nil page is ignored.
func (s *State) UpdateFromPage(p *Page) {
	if p == nil {
		return
	}
	s.CurrentPage = intOr(p.Number, s.CurrentPage)
	s.PageSize = intOr(p.Size, s.PageSize)
	s.TotalElements = intOr(p.TotalElements, 0)
	s.TotalPages = intOr(p.TotalPages, 0)
	s.First = boolOr(p.First, true)
	s.Last = boolOr(p.Last, false)
	s.NumberOfElements = intOr(p.NumberOfElements, 0)
}

// GoToPage moves to page when it lies within the known range. Any
// non-negative page is accepted while the total is still unknown.
// First/Last stay as the last server response reported them.
func (s *State) GoToPage(page int) bool {
	if page < 0 || (s.TotalPages != 0 && page >= s.TotalPages) {
		return false
	}
	s.CurrentPage = page
	return true
}

// ChangePageSize sets a positive page size.
func (s *State) ChangePageSize(size int) bool {
	if size <= 0 {
		return false
	}
	s.PageSize = size
	return true
}

// Request builds the paging part of a search request for the current
// window.
func (s *State) Request(orders ...Order) PageRequest {
	if orders == nil {
		orders = []Order{}
	}
	return PageRequest{
		IsPaged:  true,
		Page:     s.CurrentPage,
		Size:     s.PageSize,
		IsSorted: len(orders) > 0,
		Orders:   orders,
	}
}

// Order is one sort key of a search request.
type Order struct {
	Field string `json:"field"`
	Order string `json:"order"` // ASC or DESC
}

// PageRequest is the pageObj part of a search body.
type PageRequest struct {
	IsPaged  bool    `json:"isPaged"`
	Page     int     `json:"page"`
	Size     int     `json:"size"`
	IsSorted bool    `json:"isSorted"`
	Orders   []Order `json:"orders"`
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
