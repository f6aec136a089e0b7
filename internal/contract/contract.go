package contract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrBadExtension = errors.New("unsupported file extension")
)

// Status is the lifecycle state of a contract as reported by the server.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusFinalized Status = "Finalized"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusFinalized
}

// Condition combines the title and party search predicates in list queries.
type Condition string

const (
	ConditionAnd Condition = "AND"
	ConditionOr  Condition = "OR"
)

// Contract is the sole entity of the system. Timestamps are carried as the
// server's ISO-8601 strings; the client never parses or compares them except
// for display.
type Contract struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Parties     []string `json:"parties,omitempty"`
	Content     string   `json:"content,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// Draft holds the fields a caller supplies when creating a contract; the
// server assigns id and timestamps.
type Draft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Parties     []string `json:"parties,omitempty"`
	Content     string   `json:"content,omitempty"`
}

func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: status %q is not one of %s, %s", ErrInvalidInput, d.Status, StatusDraft, StatusFinalized)
	}
	return nil
}

// Patch carries a partial update; nil fields are left unchanged server-side.
type Patch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *Status  `json:"status,omitempty"`
	Parties     []string `json:"parties,omitempty"`
	Content     *string  `json:"content,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Parties == nil && p.Content == nil
}

func (p Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title cannot be cleared", ErrInvalidInput)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: status %q is not one of %s, %s", ErrInvalidInput, *p.Status, StatusDraft, StatusFinalized)
	}
	return nil
}

// Filters describes one list query. Zero values mean "not set"; defaults are
// applied by the gateway, not here.
type Filters struct {
	Status    Status
	Search    string
	Condition Condition
	Page      int
	Limit     int
}

// CheckUploadName rejects upload candidates by filename suffix before any
// request is built. Only JSON and plain-text contract documents are accepted.
func CheckUploadName(name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".txt":
		return nil
	default:
		return fmt.Errorf("%w: %s (want .json or .txt)", ErrBadExtension, filepath.Base(name))
	}
}
