package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

// Handler validates inbound requests and forwards accepted ones to the
// configured AI gateway with the real key swapped in.
type Handler struct {
	source SettingsSource
	proxy  *httputil.ReverseProxy
	logger logging.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithTransport sets the RoundTripper used for upstream calls
func WithTransport(rt http.RoundTripper) Option {
	return func(h *Handler) {
		h.proxy.Transport = rt
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// forwardTarget travels in the request context from ServeHTTP to the
// reverse proxy callbacks
type forwardTarget struct {
	url       *url.URL
	realKey   string
	requestID string
}

type forwardTargetKey struct{}

// forwardedHeaders are removed by httputil.ReverseProxy before Rewrite runs;
// they are restored so the upstream sees the client's headers unchanged.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// NewHandler creates a handler reading its configuration from source
func NewHandler(source SettingsSource, opts ...Option) *Handler {
	h := &Handler{
		source: source,
		logger: logging.NewSimpleLogger("proxy", logging.LevelInfo, true),
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite:      rewrite,
		ErrorHandler: h.handleForwardError,
		// Flush periodically so streamed completions (SSE) reach the client promptly
		FlushInterval: 100 * time.Millisecond,
		BufferPool:    newBufferPool(),
	}

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles one request: checks, then a single forwarding attempt
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFor(r)
	in := &inbound{req: r, settings: h.source.Settings(r.Context())}

	if f, name := runChecks(pipeline, in); f != nil {
		h.logger.Debug("Request rejected",
			"path", r.URL.Path, "method", r.Method, "check", name, "code", f.Record.Code, "request_id", requestID)
		WriteError(w, f)
		return
	}

	target, err := upstreamURL(in.settings.GatewayURL, r.URL)
	if err != nil {
		h.logger.Error("Invalid upstream URL",
			"path", r.URL.Path, "method", r.Method, "error", err, "request_id", requestID)
		WriteError(w, NewFailure(CodeForwardingFailed))
		return
	}

	ctx := context.WithValue(r.Context(), forwardTargetKey{}, forwardTarget{
		url:       target,
		realKey:   in.settings.RealKey,
		requestID: requestID,
	})
	h.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// rewrite points the outbound request at the gateway and swaps the key.
// Everything else is left as the client sent it.
func rewrite(pr *httputil.ProxyRequest) {
	target, ok := pr.In.Context().Value(forwardTargetKey{}).(forwardTarget)
	if !ok {
		return
	}

	pr.Out.URL = target.url
	pr.Out.Host = ""

	for _, name := range forwardedHeaders {
		if values, ok := pr.In.Header[name]; ok {
			pr.Out.Header[name] = values
		}
	}

	pr.Out.Header.Set("Authorization", "Bearer "+target.realKey)
}

// handleForwardError answers transport failures (DNS, refused connections,
// timeouts, aborted clients) with wrapper_forwarding_failed
func (h *Handler) handleForwardError(w http.ResponseWriter, r *http.Request, err error) {
	target, _ := r.Context().Value(forwardTargetKey{}).(forwardTarget)
	upstream := ""
	if target.url != nil {
		upstream = target.url.Redacted()
	}

	if r.Context().Err() != nil {
		h.logger.Warn("Client went away before upstream answered",
			"path", r.URL.Path, "method", r.Method, "upstream", upstream, "error", err, "request_id", target.requestID)
	} else {
		h.logger.Error("Forwarding failed",
			"path", r.URL.Path, "method", r.Method, "upstream", upstream, "error", err, "request_id", target.requestID)
	}

	WriteError(w, NewFailure(CodeForwardingFailed))
}

// upstreamURL joins the inbound path, minus PathPrefix, onto the gateway
// base path. Scheme, userinfo and host always come from the gateway URL so
// nothing in the inbound path can change where the request goes.
func upstreamURL(gatewayURL string, in *url.URL) (*url.URL, error) {
	gw, err := url.Parse(gatewayURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if gw.Scheme != "http" && gw.Scheme != "https" {
		return nil, fmt.Errorf("unsupported gateway scheme %q", gw.Scheme)
	}
	if gw.Host == "" {
		return nil, fmt.Errorf("gateway url %q has no host", gw.Redacted())
	}

	rawPath := gw.EscapedPath() + strings.TrimPrefix(in.EscapedPath(), PathPrefix)
	if rawPath != "" && !strings.HasPrefix(rawPath, "/") {
		rawPath = "/" + rawPath
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("unescape upstream path: %w", err)
	}

	target := *gw
	target.Path = path
	target.RawPath = rawPath
	target.Fragment = ""
	target.RawFragment = ""
	switch {
	case gw.RawQuery == "":
		target.RawQuery = in.RawQuery
	case in.RawQuery != "":
		target.RawQuery = gw.RawQuery + "&" + in.RawQuery
	}
	return &target, nil
}

// requestIDFor returns the caller's X-Request-ID or a fresh one.
// The id is only used for log correlation.
func requestIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// bufferPool implements httputil.BufferPool with 32KB buffers
type bufferPool struct {
	pool *sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, 32*1024)
				return &b
			},
		},
	}
}

func (bp *bufferPool) Get() []byte {
	return *bp.pool.Get().(*[]byte)
}

func (bp *bufferPool) Put(b []byte) {
	// Only pool buffers of the expected size
	if cap(b) != 32*1024 {
		return
	}
	b = b[:cap(b)]
	bp.pool.Put(&b)
}
