// Package upstream normalizes failures of the services this facade calls.
//
// Every non-2xx response becomes an *Error carrying the upstream status and a
// Detail, and every transport failure (refused connection, DNS, timeout)
// collapses into a single 503 *Error so callers handle infrastructure problems
// one way.
package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	ServiceDataCite = "datacite"
	ServiceAccounts = "accounts"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Detail is either a StructuredDetail or a TextDetail.
type Detail interface {
	isDetail()
	String() string
}

// StructuredDetail is an upstream error body that parsed as JSON.
type StructuredDetail struct {
	Body json.RawMessage
}

// TextDetail is the reason phrase used when the body is not JSON.
type TextDetail string

func (StructuredDetail) isDetail() {}
func (TextDetail) isDetail()       {}

func (d StructuredDetail) String() string { return string(d.Body) }
func (d TextDetail) String() string       { return string(d) }

// Value returns the decoded JSON body.
func (d StructuredDetail) Value() any {
	var v any
	if err := json.Unmarshal(d.Body, &v); err != nil {
		return string(d.Body)
	}
	return v
}

// DecodeDetail returns a StructuredDetail when body is valid JSON, otherwise
// reason as a TextDetail.
func DecodeDetail(body []byte, reason string) Detail {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		cp := make([]byte, len(trimmed))
		copy(cp, trimmed)
		return StructuredDetail{Body: cp}
	}
	return TextDetail(reason)
}

// Error is a failed upstream call.
type Error struct {
	Service    string
	StatusCode int
	Detail     Detail
}

func (e *Error) Error() string {
	detail := ""
	if e.Detail != nil {
		detail = e.Detail.String()
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, detail)
}

// Unavailable wraps a transport-level failure as a 503.
func Unavailable(service string, err error) *Error {
	return &Error{
		Service:    service,
		StatusCode: http.StatusServiceUnavailable,
		Detail:     TextDetail(err.Error()),
	}
}

// FromResponse builds an *Error from a non-2xx response. The body is read
// but not closed.
func FromResponse(service string, res *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return &Error{
		Service:    service,
		StatusCode: res.StatusCode,
		Detail:     DecodeDetail(body, ReasonPhrase(res)),
	}
}

// ReasonPhrase returns the text after the status code in the status line.
func ReasonPhrase(res *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if reason == "" {
		reason = http.StatusText(res.StatusCode)
	}
	return reason
}

// StatusCode returns the upstream status of err, or 0 when err is not an *Error.
func StatusCode(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func IsUnavailable(err error) bool {
	return StatusCode(err) == http.StatusServiceUnavailable
}
