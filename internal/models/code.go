package models

import "time"

// Status is the inventory lifecycle state of a stored code.
type Status string

const (
	StatusAvailable Status = "available"
	StatusPending   Status = "pending"
	StatusOrdered   Status = "ordered"
	StatusLast      Status = "last"
	StatusLost      Status = "lost"
	StatusSoldOut   Status = "sold_out"
)

// DefaultStatus is assigned to codes that arrive without one.
const DefaultStatus = StatusAvailable

// Statuses lists every status in display order.
var Statuses = []Status{StatusAvailable, StatusPending, StatusOrdered, StatusLast, StatusLost, StatusSoldOut}

var statusLabels = map[Status]string{
	StatusAvailable: "Disponible",
	StatusPending:   "Pendiente",
	StatusOrdered:   "Pedido",
	StatusLast:      "Último",
	StatusLost:      "Perdido",
	StatusSoldOut:   "No hay más",
}

// Label returns the human readable name used in exports.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Code represents a stored inventory code.
type Code struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Annotated   bool      `json:"annotated"`
	Duplicate   bool      `json:"duplicate"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCode is an insert request for a single code.
type NewCode struct {
	Code        string
	Description string
	Annotated   bool
	Status      Status
	CreatedAt   time.Time
}

// CodeFilter contains filtering and ordering options for listing codes.
type CodeFilter struct {
	Annotated      *bool  // nil matches both
	DuplicatesOnly bool   // only codes flagged as duplicates
	Search         string // substring match, case insensitive
	Status         Status
	OrderBy        string // created_at, code, annotated, duplicate or status
	Descending     bool
	Limit          int
	Offset         int
}

// CodeUpdate changes the non-nil fields of a stored code.
type CodeUpdate struct {
	Code        *string
	Description *string
	Annotated   *bool
	Status      *Status
}

// CodeStats contains aggregate counters about stored codes.
type CodeStats struct {
	Total      int            `json:"total"`
	Annotated  int            `json:"annotated"`
	Duplicates int            `json:"duplicates"`
	PerStatus  map[Status]int `json:"per_status"`
}

// CodeSuggestion is an autocomplete entry.
type CodeSuggestion struct {
	Code   string `json:"code"`
	Status Status `json:"status"`
}
