package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/hanpama/dalgraph/internal/language"
)

type location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type resultError struct {
	Message    string         `json:"message"`
	Locations  []location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// result is a response that carries no executed data: request, parse and
// validation failures.
type result struct {
	Data   any           `json:"data"`
	Errors []resultError `json:"errors,omitempty"`
}

func errorResult(err error) result {
	var lerr *language.Error
	if errors.As(err, &lerr) {
		return result{Errors: []resultError{fromLanguageError(lerr)}}
	}
	re := resultError{Message: err.Error()}
	var ext interface{ Extensions() map[string]any }
	if errors.As(err, &ext) {
		re.Extensions = ext.Extensions()
	}
	return result{Errors: []resultError{re}}
}

func fromLanguageError(e *language.Error) resultError {
	re := resultError{Message: e.Message, Extensions: e.Extensions}
	for _, l := range e.Locations {
		re.Locations = append(re.Locations, location{Line: l.Line, Column: l.Column})
	}
	return re
}

// fail answers a request that could not be executed. Errors carrying a
// StatusCode choose the status; the rest are 400.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		status = coded.StatusCode()
	}
	h.write(w, status, errorResult(err))
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if h.opt.Pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

// cors sets the CORS headers for requests from an allowed origin. Preflight
// requests also get the allowed methods and headers.
func (h *Handler) cors(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opt.CORSOrigins) == 0 {
		return
	}
	switch {
	case slices.Contains(h.opt.CORSOrigins, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case slices.Contains(h.opt.CORSOrigins, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	default:
		return
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	}
}
