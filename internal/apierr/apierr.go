// Package apierr defines the errors shown to GraphQL clients.
package apierr

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// CategoryQueryResolving tags every error produced by Boundary.
const CategoryQueryResolving = "QueryResolving"

// CodeUnsupportedContentType is the error code of an UnsupportedContentTypeError.
const CodeUnsupportedContentType = "GraphQl__UnsupportedContentType"

// extender is implemented by errors that contribute GraphQL error
// extensions.
type extender interface {
	Extensions() map[string]any
}

// QueryResolvingError is the only error type field resolution returns to
// clients. It carries the original message and a fixed category.
type QueryResolvingError struct {
	Message string
	cause   error
}

func (e *QueryResolvingError) Error() string { return e.Message }

func (e *QueryResolvingError) Unwrap() error { return e.cause }

// ClientSafe reports that the message may be shown to API consumers.
func (e *QueryResolvingError) ClientSafe() bool { return true }

// Extensions merges the extensions of the cause, if any, under the fixed
// category.
func (e *QueryResolvingError) Extensions() map[string]any {
	ext := map[string]any{}
	var inner extender
	if e.cause != nil && errors.As(e.cause, &inner) {
		maps.Copy(ext, inner.Extensions())
	}
	ext["category"] = CategoryQueryResolving
	return ext
}

// Boundary normalizes any resolution failure into a *QueryResolvingError.
// It returns nil for nil and leaves errors that are already normalized
// untouched.
func Boundary(err error) error {
	if err == nil {
		return nil
	}
	var qre *QueryResolvingError
	if errors.As(err, &qre) {
		return qre
	}
	return &QueryResolvingError{Message: err.Error(), cause: err}
}

// UnsupportedContentTypeError rejects a request body the endpoint cannot
// decode. It maps to HTTP 415.
type UnsupportedContentTypeError struct {
	ContentType string
	Supported   []string
}

// NewUnsupportedContentType returns the error for a request sent with
// contentType.
func NewUnsupportedContentType(contentType string, supported ...string) *UnsupportedContentTypeError {
	return &UnsupportedContentTypeError{ContentType: contentType, Supported: supported}
}

func (e *UnsupportedContentTypeError) Error() string {
	msg := fmt.Sprintf("Unsupported Content-Type, got %q, supported are ", e.ContentType)
	for i, s := range e.Supported {
		if i > 0 {
			msg += ", "
		}
		msg += fmt.Sprintf("%q", s)
	}
	return msg
}

func (e *UnsupportedContentTypeError) Extensions() map[string]any {
	return map[string]any{"code": CodeUnsupportedContentType}
}

// StatusCode is the HTTP status the error maps to.
func (e *UnsupportedContentTypeError) StatusCode() int { return http.StatusUnsupportedMediaType }
