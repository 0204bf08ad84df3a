package onedrive

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// SDKVersion is reported to the service in the X-RequestStats header.
const SDKVersion = "1.0.0"

// Standard headers stamped on every built request.
const (
	requestStatsHeader = "X-RequestStats"
	requestIDHeader    = "client-request-id"
)

// Header is one request header. Order is preserved; Authorization is unique
// by name (the interceptor never adds a second one).
type Header struct {
	Name  string
	Value string
}

// QueryOption is one query parameter. Order is preserved in the built URL.
type QueryOption struct {
	Name  string
	Value string
}

// Request describes one REST call before transmission: a method, a URL built
// from a base plus path segments, ordered query parameters, and headers.
// Built once per call; interceptors may add headers until the pipeline
// transmits it.
type Request struct {
	Method  string
	headers []Header
	query   []QueryOption

	baseURL  string
	segments []string
}

// NewRequest builds a request descriptor for method against baseURL plus
// path segments. Segments are taken verbatim (unencoded); URL building
// percent-encodes them.
func NewRequest(method, baseURL string, segments ...string) *Request {
	return &Request{
		Method:   method,
		baseURL:  baseURL,
		segments: segments,
		headers: []Header{
			{Name: requestStatsHeader, Value: "SDK-Version=Go-v" + SDKVersion},
			{Name: requestIDHeader, Value: uuid.NewString()},
		},
	}
}

// AddHeader appends a header.
func (r *Request) AddHeader(name, value string) *Request {
	r.headers = append(r.headers, Header{Name: name, Value: value})
	return r
}

// AddQueryOption appends a query parameter.
func (r *Request) AddQueryOption(name, value string) *Request {
	r.query = append(r.query, QueryOption{Name: name, Value: value})
	return r
}

// Headers returns the current header set.
func (r *Request) Headers() []Header {
	return r.headers
}

// URL builds the full request URL. Each path segment is Unicode-normalized
// to NFC and percent-encoded individually, so reserved and non-ASCII
// characters in item names survive the round trip.
func (r *Request) URL() string {
	return BuildURL(r.baseURL, r.segments, r.query)
}

// BuildURL joins base, encoded path segments, and ordered query parameters.
func BuildURL(base string, segments []string, query []QueryOption) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(base, "/"))

	for _, seg := range segments {
		for _, part := range strings.Split(seg, "/") {
			if part == "" {
				continue
			}

			b.WriteString("/")
			b.WriteString(url.PathEscape(norm.NFC.String(part)))
		}
	}

	for i, q := range query {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}

		b.WriteString(url.QueryEscape(q.Name))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(q.Value))
	}

	return b.String()
}
