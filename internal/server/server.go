// Package server serves GraphQL over HTTP.
//
// POST bodies are accepted as application/json ({query, variables,
// operationName}, single or batched) or application/graphql (the raw query).
// Any other content type is rejected with 415 before the body is read. GET
// requests carry the same fields in the query string.
package server

import (
	"context"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/language"
	"github.com/hanpama/dalgraph/internal/reqid"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-Id"

// Options configures a Handler.
type Options struct {
	// Timeout bounds requests whose context has no deadline. Zero disables it.
	Timeout time.Duration
	// Pretty indents JSON responses.
	Pretty bool
	// MaxBodyBytes limits request bodies. Zero means unlimited.
	MaxBodyBytes int64
	// CORSOrigins lists the allowed origins; "*" allows any. Empty disables
	// CORS headers.
	CORSOrigins []string
	// MetadataHeaders are copied from the request into outgoing gRPC metadata.
	MetadataHeaders []string
	Playground      bool
	Introspection   bool
	// Metrics is mounted at /metrics by Mux when set.
	Metrics http.Handler
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                   { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option      { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option    { return func(o *Options) { o.CORSOrigins = origins } }
func WithPlayground(enable bool) Option    { return func(o *Options) { o.Playground = enable } }
func WithIntrospection(enable bool) Option { return func(o *Options) { o.Introspection = enable } }
func WithMetrics(h http.Handler) Option    { return func(o *Options) { o.Metrics = h } }
func WithMetadataHeaders(names ...string) Option {
	return func(o *Options) {
		o.MetadataHeaders = make([]string, len(names))
		for i, n := range names {
			o.MetadataHeaders[i] = strings.ToLower(n)
		}
	}
}

func newOptions(opts []Option) Options {
	o := Options{Timeout: 10 * time.Second, Playground: true, Introspection: true}
	for _, f := range opts {
		f(&o)
	}
	return o
}

// Handler serves the GraphQL endpoint. Each request is answered by the
// engine its Source holds when the request arrives.
type Handler struct {
	source Source
	opt    Options
}

// NewWithSource returns a handler serving src.
func NewWithSource(src Source, opts ...Option) *Handler {
	return &Handler{source: src, opt: newOptions(opts)}
}

// Mux routes path to h and adds /schema.graphql, /playground and /metrics.
func (h *Handler) Mux(path string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	mux.HandleFunc("GET /schema.graphql", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, h.source.Engine().SDL)
	})
	if h.opt.Playground {
		mux.Handle("GET /playground", playground.Handler("dalgraph", path))
	}
	if h.opt.Metrics != nil {
		mux.Handle("GET /metrics", h.opt.Metrics)
	}
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, id := reqid.NewContext(ctx)
	w.Header().Set(RequestIDHeader, reqid.Format(id))

	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: rw.status, Duration: time.Since(start)})
	}()

	h.cors(rw, r)
	switch {
	case r.Method == http.MethodOptions:
		rw.WriteHeader(http.StatusNoContent)
		return
	case r.Method != http.MethodGet && r.Method != http.MethodPost:
		h.fail(rw, errMethodNotAllowed)
		return
	case r.Method == http.MethodGet && h.opt.Playground && !r.URL.Query().Has("query") && acceptsHTML(r):
		playground.Handler("dalgraph", r.URL.Path).ServeHTTP(rw, r)
		return
	}

	reqs, batched, err := decodeRequest(r, h.opt.MaxBodyBytes)
	if err != nil {
		h.fail(rw, err)
		return
	}
	ctx = h.forwardHeaders(ctx, r)

	// One engine per HTTP request, so a batch never straddles a reload.
	engine := h.source.Engine()
	results := make([]any, len(reqs))
	for i, req := range reqs {
		results[i] = h.execute(ctx, engine, req)
	}
	if batched {
		h.write(rw, http.StatusOK, results)
		return
	}
	h.write(rw, http.StatusOK, results[0])
}

func (h *Handler) execute(ctx context.Context, engine *Engine, req Request) any {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return errorResult(err)
	}
	opType := ""
	if op := doc.Operations.ForName(req.OperationName); op != nil {
		opType = string(op.Operation)
	} else if len(doc.Operations) == 1 {
		opType = string(doc.Operations[0].Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	var errs []error
	defer func() {
		eventbus.Publish(ctx, events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: opType,
			Errors:        errs,
			Duration:      time.Since(start),
		})
	}()

	if list := engine.Validate(doc); len(list) > 0 {
		out := result{Errors: make([]resultError, len(list))}
		for i, e := range list {
			out.Errors[i] = fromLanguageError(e)
			errs = append(errs, e)
		}
		return out
	}
	res := engine.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, nil)
	for _, e := range res.Errors {
		errs = append(errs, e)
	}
	return res
}

// forwardHeaders copies the configured request headers into outgoing gRPC
// metadata.
func (h *Handler) forwardHeaders(ctx context.Context, r *http.Request) context.Context {
	if len(h.opt.MetadataHeaders) == 0 {
		return ctx
	}
	md := metadata.MD{}
	for name, values := range r.Header {
		if key := strings.ToLower(name); slices.Contains(h.opt.MetadataHeaders, key) {
			md[key] = values
		}
	}
	return metadata.NewOutgoingContext(ctx, md)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func acceptsHTML(r *http.Request) bool {
	for part := range strings.SplitSeq(r.Header.Get("Accept"), ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "text/html") || part == "*/*" {
			return true
		}
	}
	return false
}
