package domain

import (
	"fmt"
	"regexp"
)

// DOIPattern is the accepted DOI syntax, adapted from
// https://www.crossref.org/blog/dois-and-matching-regular-expressions.
const DOIPattern = `^10\.\d{4,}(\.\d+)*/[-._;()/:A-Za-z0-9]+$`

var doiRegexp = regexp.MustCompile(DOIPattern)

const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
	DefaultPageNum  = 1

	// ReservedEventKey is the metadata attribute DataCite reads as a state
	// transition. It is never forwarded on metadata writes.
	ReservedEventKey = "event"
)

type DOIRecord struct {
	DOI      string   `json:"doi" yaml:"doi" pattern:"^10\\.\\d{4,}(\\.\\d+)*/[-._;()/:A-Za-z0-9]+$" example:"10.15493/SARVA.DWS.10000001"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

type DOIRecordList struct {
	Records      []DOIRecord `json:"records" yaml:"records"`
	TotalRecords int         `json:"total_records" yaml:"total_records"`
	TotalPages   int         `json:"total_pages" yaml:"total_pages"`
	ThisPage     int         `json:"this_page" yaml:"this_page"`
}

// Event triggers a DOI state transition on DataCite.
type Event string

const (
	// EventRegister moves a DOI from draft to registered.
	EventRegister Event = "register"
	// EventPublish moves a DOI from draft or registered to findable.
	EventPublish Event = "publish"
	// EventHide moves a DOI from findable to registered.
	EventHide Event = "hide"
)

// Events lists every accepted event in declaration order.
func Events() []Event {
	return []Event{EventRegister, EventPublish, EventHide}
}

func (e Event) Valid() bool {
	switch e {
	case EventRegister, EventPublish, EventHide:
		return true
	}
	return false
}

func (e Event) String() string { return string(e) }

// ParseEvent accepts only the closed set of DOI events.
func ParseEvent(s string) (Event, error) {
	e := Event(s)
	if !e.Valid() {
		return "", &ValidationError{Field: "event", Value: s, Reason: "must be one of register, publish, hide"}
	}
	return e, nil
}

// ValidationError reports input rejected before any upstream call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ValidateDOI checks s against DOIPattern.
func ValidateDOI(s string) error {
	if !doiRegexp.MatchString(s) {
		return &ValidationError{Field: "doi", Value: s, Reason: "does not match " + DOIPattern}
	}
	return nil
}

// NewDOIRecord builds a record after validating its DOI.
func NewDOIRecord(doi string, md Metadata) (DOIRecord, error) {
	if err := ValidateDOI(doi); err != nil {
		return DOIRecord{}, err
	}
	if md == nil {
		md = EmptyMetadata()
	}
	return DOIRecord{DOI: doi, Metadata: md}, nil
}

// ValidatePaging applies defaults to zero values and rejects anything out of range.
func ValidatePaging(pageSize, pageNum int) (int, int, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageNum == 0 {
		pageNum = DefaultPageNum
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, 0, &ValidationError{Field: "page_size", Value: fmt.Sprint(pageSize), Reason: fmt.Sprintf("must be between 1 and %d", MaxPageSize)}
	}
	if pageNum < 1 {
		return 0, 0, &ValidationError{Field: "page_num", Value: fmt.Sprint(pageNum), Reason: "must be at least 1"}
	}
	return pageSize, pageNum, nil
}
