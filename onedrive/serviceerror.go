package onedrive

import (
	"fmt"
	"net/http"
	"strings"
)

// Rendering limits for the brief (default) error string. The verbose
// rendering has no limits.
const (
	maxBriefLength = 50
	truncationMark = "[...]"
	maxByteCount   = 8
)

// throwSiteHeader identifies the service-side code location that produced an
// error. Always shown, even in the brief rendering.
const throwSiteHeader = "X-ThrowSite"

// serverErrorThreshold is the status code at and above which a response
// indicates a service-side defect rather than a client mistake.
const serverErrorThreshold = 500

// fatalHint is appended to fatal service errors.
const fatalHint = "This is an unexpected error from the service; please report it at " +
	"https://github.com/tonimelisma/onedrive-sdk-go/issues"

// ErrorBody is the structured error payload the service returns:
//
//	{"error": {"code": "...", "message": "...", "innererror": {...}}}
type ErrorBody struct {
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	InnerError *ErrorBody `json:"innererror,omitempty"`
}

// errorEnvelope is the wire wrapper around ErrorBody.
type errorEnvelope struct {
	Error *ErrorBody `json:"error"`
}

// ServiceError is a non-2xx response, carrying full request and response
// context for diagnostics. Error() is a brief, truncated rendering; Verbose()
// includes everything. Immutable once created; the pipeline never retries it.
type ServiceError struct {
	Method          string
	URL             string
	RequestHeaders  []Header
	RequestBody     string
	StatusCode      int
	Status          string
	ResponseHeaders http.Header
	ResponseBody    string

	// Body is the parsed structured payload, or a best-effort synthesis
	// when the response was not parseable JSON.
	Body *ErrorBody
}

// IsError reports whether the error payload carries code anywhere in its
// code/innererror chain. Matching is case-insensitive.
func (e *ServiceError) IsError(code ErrorCode) bool {
	for body := e.Body; body != nil; body = body.InnerError {
		if code.matches(body.Code) {
			return true
		}
	}

	return false
}

// Message returns the service-reported error message, if any.
func (e *ServiceError) Message() string {
	if e.Body == nil {
		return ""
	}

	return e.Body.Message
}

func (e *ServiceError) Error() string {
	return e.render(false)
}

// Verbose returns the untruncated rendering, including all headers and the
// complete request and response bodies.
func (e *ServiceError) Verbose() string {
	return e.render(true)
}

func (e *ServiceError) render(verbose bool) string {
	var b strings.Builder

	if e.Body != nil && e.Body.Code != "" {
		fmt.Fprintf(&b, "Error code: %s\n", e.Body.Code)
		fmt.Fprintf(&b, "Error message: %s\n", e.Body.Message)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s %s\n", e.Method, e.URL)

	for _, h := range e.RequestHeaders {
		fmt.Fprintf(&b, "%s : %s\n", h.Name, h.Value)
	}

	if e.RequestBody != "" {
		b.WriteString(brief(e.RequestBody, verbose))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%d : %s\n", e.StatusCode, e.Status)

	for name, values := range e.ResponseHeaders {
		// The throw site pinpoints the failure server-side; everything
		// else is noise in the brief rendering.
		if !verbose && !strings.EqualFold(name, throwSiteHeader) {
			continue
		}

		fmt.Fprintf(&b, "%s : %s\n", name, strings.Join(values, ", "))
	}

	if verbose && e.ResponseBody != "" {
		b.WriteString("\n")
		b.WriteString(e.ResponseBody)
		b.WriteString("\n")
	} else if !verbose {
		b.WriteString(truncationMark)
		b.WriteString("\n\n")
		b.WriteString("[Some information was truncated for brevity, enable debug logging for more details]")
	}

	return b.String()
}

// FatalServiceError is a ServiceError for responses at or above 500. These
// indicate a service-side defect, so the message points at the issue tracker.
type FatalServiceError struct {
	ServiceError
}

func (e *FatalServiceError) Error() string {
	return fmt.Sprintf("[This request was unexpected. %s]\n%s", fatalHint, e.ServiceError.Error())
}

// brief truncates s for the compact rendering.
func brief(s string, verbose bool) string {
	if verbose || len(s) <= maxBriefLength {
		return s
	}

	return s[:maxBriefLength] + truncationMark
}

// renderByteBody renders a binary request body for diagnostics without
// dumping the whole payload.
func renderByteBody(body []byte) string {
	var b strings.Builder

	fmt.Fprintf(&b, "byte[%d]", len(body))
	b.WriteString(" {")

	for i, v := range body {
		if i >= maxByteCount {
			b.WriteString(truncationMark)
			break
		}

		if i > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "%d", v)
	}

	b.WriteString("}")

	return b.String()
}

// newServiceError builds the typed error for a non-2xx response. body is the
// raw response text; when it is not a parseable structured payload, a
// best-effort payload is synthesized from it so the failure is never lost.
func newServiceError(serializer Serializer, req *http.Request, requestBody string, resp *http.Response, body []byte) error {
	svcErr := ServiceError{
		Method:          req.Method,
		URL:             req.URL.String(),
		RequestHeaders:  snapshotHeaders(req.Header),
		RequestBody:     requestBody,
		StatusCode:      resp.StatusCode,
		Status:          http.StatusText(resp.StatusCode),
		ResponseHeaders: resp.Header,
		ResponseBody:    string(body),
	}

	var envelope errorEnvelope

	if isJSONContentType(resp.Header.Get("Content-Type")) {
		if err := serializer.Unmarshal(body, &envelope); err != nil {
			envelope.Error = nil
		}
	}

	if envelope.Error != nil {
		svcErr.Body = envelope.Error
	} else {
		svcErr.Body = &ErrorBody{
			Code:    string(CodeGeneralException),
			Message: "Unable to parse error response message. Raw message: " + string(body),
		}
	}

	if resp.StatusCode >= serverErrorThreshold {
		return &FatalServiceError{ServiceError: svcErr}
	}

	return &svcErr
}

// snapshotHeaders flattens an http.Header into the ordered pair form used
// for diagnostics.
func snapshotHeaders(h http.Header) []Header {
	var out []Header

	for name, values := range h {
		for _, v := range values {
			out = append(out, Header{Name: name, Value: v})
		}
	}

	return out
}

// isJSONContentType reports whether a Content-Type names a JSON payload.
func isJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}
