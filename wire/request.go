// Package wire builds the minimal HTTP/1.1 requests trickle sends and pulls
// JSON fragments back out of raw response bytes.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const (
	// DefaultRequestBudget is the largest formatted request (exclusive) a
	// Serializer will produce when no budget is configured.
	DefaultRequestBudget = 1024

	// DefaultUserAgent is the client identifier sent with every request.
	DefaultUserAgent = "trickle/1.0"
)

// ErrRequestTooLarge is returned when a formatted request does not fit the
// serializer budget.
var ErrRequestTooLarge = errors.New("request exceeds formatting budget")

// Target is the endpoint and credential a request is addressed to.
type Target struct {
	// Credential is the pre-encoded value placed after "Basic ".
	Credential string
	Host       string
	Port       int
	Path       string
}

// Serializer formats upload and download requests under a fixed size budget.
// The zero value uses DefaultRequestBudget and DefaultUserAgent.
type Serializer struct {
	Budget    int
	UserAgent string
}

// NewSerializer creates a Serializer. Non-positive budgets and empty user
// agents fall back to the defaults.
func NewSerializer(budget int, userAgent string) Serializer {
	return Serializer{Budget: budget, UserAgent: userAgent}
}

func (s Serializer) budget() int {
	if s.Budget <= 0 {
		return DefaultRequestBudget
	}
	return s.Budget
}

func (s Serializer) userAgent() string {
	if s.UserAgent == "" {
		return DefaultUserAgent
	}
	return s.UserAgent
}

// BuildUploadRequest returns the PUT request line and headers announcing a
// body of contentLength bytes. The body itself is not included.
func (s Serializer) BuildUploadRequest(t Target, contentLength int64) ([]byte, error) {
	return s.build("PUT", t, contentLength, true)
}

// BuildDownloadRequest returns the GET request line and headers for t.
func (s Serializer) BuildDownloadRequest(t Target) ([]byte, error) {
	return s.build("GET", t, 0, false)
}

func (s Serializer) build(method string, t Target, contentLength int64, withBody bool) ([]byte, error) {
	var b bytes.Buffer
	b.Grow(256)

	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(t.Path)
	b.WriteString(" HTTP/1.1\r\n")

	b.WriteString("Host: ")
	b.WriteString(t.Host)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(t.Port))
	b.WriteString("\r\n")

	b.WriteString("Authorization: Basic ")
	b.WriteString(t.Credential)
	b.WriteString("\r\n")

	b.WriteString("User-Agent: ")
	b.WriteString(s.userAgent())
	b.WriteString("\r\n")

	b.WriteString("Connection: close\r\n")

	if withBody {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.FormatInt(contentLength, 10))
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	// The budget mirrors a fixed buffer that also holds a terminator, so a
	// request of exactly Budget bytes does not fit.
	if b.Len() >= s.budget() {
		return nil, fmt.Errorf("%s %s: %d bytes, budget %d: %w", method, t.Path, b.Len(), s.budget(), ErrRequestTooLarge)
	}
	return b.Bytes(), nil
}

// BuildUploadRequest formats a PUT request with the default Serializer.
func BuildUploadRequest(t Target, contentLength int64) ([]byte, error) {
	return Serializer{}.BuildUploadRequest(t, contentLength)
}

// BuildDownloadRequest formats a GET request with the default Serializer.
func BuildDownloadRequest(t Target) ([]byte, error) {
	return Serializer{}.BuildDownloadRequest(t)
}
