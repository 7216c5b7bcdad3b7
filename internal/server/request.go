package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/hanpama/dalgraph/internal/apierr"
)

// Supported request content types.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeGraphQL = "application/graphql"
)

// Request is one GraphQL operation request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// httpError is a request error answered with a status other than 400.
type httpError struct {
	msg    string
	status int
}

func (e *httpError) Error() string   { return e.msg }
func (e *httpError) StatusCode() int { return e.status }

var (
	errMethodNotAllowed = &httpError{msg: "method not allowed", status: http.StatusMethodNotAllowed}
	errBodyTooLarge     = &httpError{msg: "body too large", status: http.StatusRequestEntityTooLarge}
	errMissingQuery     = errors.New("missing 'query'")
	errInvalidJSON      = errors.New("invalid JSON")
)

// decodeRequest reads the operations of r. batched reports a JSON array
// body, answered with an array of results.
func decodeRequest(r *http.Request, maxBody int64) (reqs []Request, batched bool, err error) {
	if r.Method == http.MethodGet {
		req, err := decodeQueryString(r)
		return []Request{req}, false, err
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != ContentTypeJSON && mediaType != ContentTypeGraphQL {
		return nil, false, apierr.NewUnsupportedContentType(contentType, ContentTypeJSON, ContentTypeGraphQL)
	}
	body, err := readBody(r, maxBody)
	if err != nil {
		return nil, false, err
	}

	if mediaType == ContentTypeGraphQL {
		if strings.TrimSpace(string(body)) == "" {
			return nil, false, errMissingQuery
		}
		return []Request{{Query: string(body), Variables: map[string]any{}}}, false, nil
	}

	body = bytes.TrimSpace(body)
	if batched = bytes.HasPrefix(body, []byte("[")); batched {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, true, errInvalidJSON
		}
		if len(reqs) == 0 {
			return nil, true, errors.New("empty batch")
		}
	} else {
		reqs = make([]Request, 1)
		if err := json.Unmarshal(body, &reqs[0]); err != nil {
			return nil, false, errInvalidJSON
		}
		if reqs[0].Query == "" {
			return nil, false, errMissingQuery
		}
	}
	for i := range reqs {
		if reqs[i].Variables == nil {
			reqs[i].Variables = map[string]any{}
		}
	}
	return reqs, batched, nil
}

func decodeQueryString(r *http.Request) (Request, error) {
	q := r.URL.Query()
	req := Request{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
		Variables:     map[string]any{},
	}
	if req.Query == "" {
		return req, errMissingQuery
	}
	if v := q.Get("variables"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
			return req, errors.New("invalid 'variables' JSON")
		}
	}
	return req, nil
}

func readBody(r *http.Request, maxBody int64) ([]byte, error) {
	defer r.Body.Close()
	body := r.Body
	if maxBody > 0 {
		body = http.MaxBytesReader(nil, r.Body, maxBody)
	}
	data, err := io.ReadAll(body)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, errBodyTooLarge
	case err != nil:
		return nil, errors.New("failed to read body")
	}
	return data, nil
}
