package onedrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Chunked-upload retry policy: attempts back off quadratically, and the
// attempt counter starts at zero so the first try waits not at all.
const (
	defaultMaxRetry    = 5
	retryBackoffBaseMS = 2000
)

// UploadSession is a server-side resumable upload, created before the first
// chunk and consulted for the next expected byte range between chunks.
type UploadSession struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationDateTime Timestamp `json:"expirationDateTime"`
	NextExpectedRanges []string  `json:"nextExpectedRanges"`
}

// Incomplete reports whether the server still expects more bytes.
func (s *UploadSession) Incomplete() bool {
	return len(s.NextExpectedRanges) > 0
}

// ChunkedUploadResult is the outcome of one chunk upload. Exactly one of the
// three fields is set: Item when the upload finished, Session when the
// server expects more chunks, Err when all attempts were exhausted.
type ChunkedUploadResult[T any] struct {
	Item    *T
	Session *UploadSession
	Err     error
}

// Completed reports whether the whole upload finished with this chunk.
func (r *ChunkedUploadResult[T]) Completed() bool {
	return r.Item != nil
}

// ChunkedUploadRequest uploads one fixed-size chunk of a larger byte stream
// with bounded retry. Transport failures are treated as transient and
// retried; Upload itself never returns an error, callers inspect the result.
type ChunkedUploadRequest[T any] struct {
	provider *Provider
	req      *Request

	rangeBegin int64
	rangeEnd   int64
	totalSize  int64
	maxRetry   int

	logger *slog.Logger

	// sleep waits between attempts. Tests override it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChunkedUploadRequest builds the request for the chunk covering
// [rangeBegin, rangeBegin+chunkSize) of a totalSize-byte upload against the
// session's upload URL.
func NewChunkedUploadRequest[T any](p *Provider, session *UploadSession, rangeBegin int64, chunkSize int, totalSize int64) *ChunkedUploadRequest[T] {
	rangeEnd := rangeBegin + int64(chunkSize) - 1

	req := NewRequest(http.MethodPut, session.UploadURL)
	req.AddHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rangeBegin, rangeEnd, totalSize))

	return &ChunkedUploadRequest[T]{
		provider:   p,
		req:        req,
		rangeBegin: rangeBegin,
		rangeEnd:   rangeEnd,
		totalSize:  totalSize,
		maxRetry:   defaultMaxRetry,
		logger:     p.logger,
		sleep:      sleepContext,
	}
}

// WithMaxRetry overrides the attempt budget.
func (u *ChunkedUploadRequest[T]) WithMaxRetry(n int) *ChunkedUploadRequest[T] {
	u.maxRetry = n
	return u
}

// Upload transmits the chunk, retrying transient failures with quadratic
// backoff. progress, when non-nil, is reported while the chunk body is
// written. The returned result is never nil.
func (u *ChunkedUploadRequest[T]) Upload(ctx context.Context, chunk []byte, progress ProgressFunc) *ChunkedUploadResult[T] {
	var lastErr error

	for attempt := 0; attempt < u.maxRetry; attempt++ {
		if delay := backoffDelay(attempt); delay > 0 {
			if err := u.sleep(ctx, delay); err != nil {
				return &ChunkedUploadResult[T]{Err: err}
			}
		}

		result, err := u.attempt(ctx, chunk, progress)
		if err == nil {
			return result
		}

		lastErr = err

		u.logger.Warn("chunk upload attempt failed",
			slog.Int64("range_begin", u.rangeBegin),
			slog.Int64("range_end", u.rangeEnd),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return &ChunkedUploadResult[T]{Err: &ServiceError{
		Method:     http.MethodPut,
		URL:        u.req.URL(),
		StatusCode: 0,
		Body: &ErrorBody{
			Code:    string(CodeUploadSessionIncomplete),
			Message: fmt.Sprintf("upload session failed after %d attempts: %v", u.maxRetry, lastErr),
		},
	}}
}

// attempt performs one transmission of the chunk.
func (u *ChunkedUploadRequest[T]) attempt(ctx context.Context, chunk []byte, progress ProgressFunc) (*ChunkedUploadResult[T], error) {
	httpReq, requestBody, err := u.provider.buildHTTPRequest(ctx, u.req, chunk, progress)
	if err != nil {
		return nil, err
	}

	resp, err := u.provider.do(httpReq, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := u.provider.checkStatus(httpReq, requestBody, resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClientError{Op: "read chunk response", Err: err}
	}

	// The response is either a session (more chunks expected) or the
	// finished item; the presence of nextExpectedRanges disambiguates.
	var session UploadSession
	if err := u.provider.serializer.Unmarshal(raw, &session); err == nil && session.Incomplete() {
		return &ChunkedUploadResult[T]{Session: &session}, nil
	}

	item := new(T)
	if err := u.provider.serializer.Unmarshal(raw, item); err != nil {
		return nil, &ClientError{Op: "decode chunk response", Err: err}
	}

	return &ChunkedUploadResult[T]{Item: item}, nil
}

// backoffDelay returns the wait before the given zero-based attempt.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(retryBackoffBaseMS*attempt*attempt) * time.Millisecond
}
