package onedrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Response-classification status constants.
const (
	clientErrorThreshold = 400
	statusAccepted       = 202
	statusNoContent      = 204
	statusNotModified    = 304
	statusSeeOther       = 303
)

// ProgressFunc reports transfer progress as (transferred, total) bytes.
// total is -1 when unknown.
type ProgressFunc func(transferred, total int64)

// ClientError wraps a transport-level failure (I/O error, malformed URL,
// unexpected runtime failure during the request lifecycle) with its cause.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("onedrive: %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// HTTPClient used for transmission. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Serializer for request and response bodies. Defaults to JSONSerializer.
	Serializer Serializer

	// Interceptors run in order against every outgoing request.
	Interceptors []Interceptor

	// Logger receives structured debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Provider transmits request descriptors and classifies their responses.
// It never retries; retry, where it exists, is a deliberate feature of the
// chunked-upload component only.
type Provider struct {
	httpClient   *http.Client
	noRedirect   *http.Client
	serializer   Serializer
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewProvider builds a request pipeline.
func NewProvider(cfg ProviderConfig) *Provider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	serializer := cfg.Serializer
	if serializer == nil {
		serializer = JSONSerializer{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Async-monitor status calls must observe 303 themselves instead of
	// having the transport chase the redirect.
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Provider{
		httpClient:   httpClient,
		noRedirect:   &noRedirect,
		serializer:   serializer,
		interceptors: cfg.Interceptors,
		logger:       logger,
	}
}

// Serializer returns the configured serializer.
func (p *Provider) Serializer() Serializer {
	return p.serializer
}

// Send transmits a request and deserializes a JSON success response into T.
// A 204 or 304 response returns (nil, nil): valid, resultless outcomes. Any
// response at or above 400 returns a *ServiceError (or *FatalServiceError at
// 500 and up). The response body is always closed.
func Send[T any](ctx context.Context, p *Provider, req *Request, body any) (*T, error) {
	httpReq, requestBody, err := p.buildHTTPRequest(ctx, req, body, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch classify(resp.StatusCode, resp.Header.Get("Content-Type"), shapeObject) {
	case outcomeError:
		return nil, p.serviceError(httpReq, requestBody, resp)
	case outcomeNoResult:
		return nil, nil
	case outcomeJSON:
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &ClientError{Op: "send", Err: fmt.Errorf("reading response: %w", readErr)}
		}

		result := new(T)
		if err := p.serializer.Unmarshal(raw, result); err != nil {
			return nil, &ClientError{Op: "send", Err: fmt.Errorf("decoding response: %w", err)}
		}

		return result, nil
	default:
		return nil, &ClientError{Op: "send", Err: fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))}
	}
}

// SendStream transmits a request and returns the raw response body as an
// open stream. Ownership of the stream transfers to the caller, which must
// close it; the pipeline deliberately does not. A 204 or 304 response
// carries no body and yields (nil, nil), so callers must nil-check before
// deferring Close. progress, when non-nil, is reported while the request
// body is written.
func SendStream(ctx context.Context, p *Provider, req *Request, body any, progress ProgressFunc) (io.ReadCloser, error) {
	httpReq, requestBody, err := p.buildHTTPRequest(ctx, req, body, progress)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq, false)
	if err != nil {
		return nil, err
	}

	switch classify(resp.StatusCode, resp.Header.Get("Content-Type"), shapeStream) {
	case outcomeError:
		defer resp.Body.Close()
		return nil, p.serviceError(httpReq, requestBody, resp)
	case outcomeNoResult:
		resp.Body.Close()
		return nil, nil
	default:
		// JSON or binary alike: the caller asked for the raw stream.
		return resp.Body, nil
	}
}

// SendMonitored transmits a request whose caller expects a long-running
// operation handle: a 202 response yields an AsyncMonitor for the Location
// header, without reading any body.
func SendMonitored[T any](ctx context.Context, p *Provider, req *Request, body any, getter ResultGetter[T]) (*AsyncMonitor[T], error) {
	httpReq, requestBody, err := p.buildHTTPRequest(ctx, req, body, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch classify(resp.StatusCode, resp.Header.Get("Content-Type"), shapeMonitor) {
	case outcomeError:
		return nil, p.serviceError(httpReq, requestBody, resp)
	case outcomeAccepted:
		return newAsyncMonitor(p, resp.Header.Get("Location"), getter), nil
	default:
		return nil, &ClientError{Op: "send", Err: fmt.Errorf("expected 202 Accepted, got %d", resp.StatusCode)}
	}
}

// buildHTTPRequest turns a descriptor plus body into an *http.Request with
// all interceptors applied. The returned string is the diagnostic rendering
// of the request body for error reporting.
func (p *Provider) buildHTTPRequest(ctx context.Context, req *Request, body any, progress ProgressFunc) (*http.Request, string, error) {
	reader, contentType, diag, err := p.prepareBody(body, progress)
	if err != nil {
		return nil, "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(), reader)
	if err != nil {
		return nil, "", &ClientError{Op: "build request", Err: err}
	}

	for _, h := range req.Headers() {
		httpReq.Header.Set(h.Name, h.Value)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for _, ic := range p.interceptors {
		if err := ic.Intercept(ctx, httpReq); err != nil {
			return nil, "", err
		}
	}

	return httpReq, diag, nil
}

// prepareBody maps a call body onto the wire: nil sends nothing, raw bytes
// go as an octet stream with explicit length, anything else is serialized
// to JSON.
func (p *Provider) prepareBody(body any, progress ProgressFunc) (io.Reader, string, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", "", nil
	case []byte:
		var reader io.Reader = bytes.NewReader(b)
		if progress != nil {
			reader = &progressReader{r: reader, total: int64(len(b)), report: progress}
		}

		return reader, "application/octet-stream", renderByteBody(b), nil
	default:
		raw, err := p.serializer.Marshal(body)
		if err != nil {
			return nil, "", "", &ClientError{Op: "encode request body", Err: err}
		}

		var reader io.Reader = bytes.NewReader(raw)
		if progress != nil {
			reader = &progressReader{r: reader, total: int64(len(raw)), report: progress}
		}

		return reader, "application/json", string(raw), nil
	}
}

// do transmits and wraps transport failures.
func (p *Provider) do(httpReq *http.Request, noRedirect bool) (*http.Response, error) {
	p.logger.Debug("sending request",
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.String()),
	)

	client := p.httpClient
	if noRedirect {
		client = p.noRedirect
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		p.logger.Error("request transport failure",
			slog.String("method", httpReq.Method),
			slog.String("url", httpReq.URL.String()),
			slog.String("error", err.Error()),
		)

		return nil, &ClientError{Op: fmt.Sprintf("%s %s", httpReq.Method, httpReq.URL), Err: err}
	}

	p.logger.Debug("received response",
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.String()),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// checkStatus raises a typed service error for any response at or above the
// client-error threshold. Does not consume the body for passing responses.
func (p *Provider) checkStatus(httpReq *http.Request, requestBody string, resp *http.Response) error {
	if resp.StatusCode < clientErrorThreshold {
		return nil
	}

	return p.serviceError(httpReq, requestBody, resp)
}

// serviceError consumes the response body and builds the typed error.
func (p *Provider) serviceError(httpReq *http.Request, requestBody string, resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		raw = []byte("(failed to read response body)")
	}

	svcErr := newServiceError(p.serializer, httpReq, requestBody, resp, raw)

	p.logger.Error("request failed",
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.String()),
		slog.Int("status", resp.StatusCode),
	)

	return svcErr
}

// progressReader reports bytes consumed from the underlying reader.
type progressReader struct {
	r           io.Reader
	transferred int64
	total       int64
	report      ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		pr.report(pr.transferred, pr.total)
	}

	return n, err
}
