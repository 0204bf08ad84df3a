package onedrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Async operation status values reported by the service.
const (
	asyncStatusCompleted = "completed"
	asyncStatusFailed    = "failed"
)

// AsyncOperationStatus is one poll observation of a long-running server-side
// operation. A terminal status (completed or failed) ends polling.
type AsyncOperationStatus struct {
	Operation string `json:"operation"`

	// PercentageComplete is nil when the service omitted it, which is
	// distinct from a reported 0%.
	PercentageComplete *float64 `json:"percentageComplete"`
	Status             string   `json:"status"`

	// ResultLocation is where the finished result lives. Filled from the
	// redirect target when the monitor URL answers 303 See Other.
	ResultLocation string `json:"-"`
}

// Completed reports whether the operation finished successfully.
func (s *AsyncOperationStatus) Completed() bool {
	return s.Status == asyncStatusCompleted
}

// Failed reports whether the server marked the operation failed.
func (s *AsyncOperationStatus) Failed() bool {
	return s.Status == asyncStatusFailed
}

// AsyncOperationError is a monitored operation the server reported as
// failed, distinct from a transport error. Carries the last known status.
type AsyncOperationError struct {
	Status AsyncOperationStatus
}

func (e *AsyncOperationError) Error() string {
	return fmt.Sprintf("onedrive: async operation %q failed", e.Status.Operation)
}

// ResultGetter fetches the finished result of a monitored operation from
// the location the final status points at.
type ResultGetter[T any] func(ctx context.Context, location string) (*T, error)

// AsyncMonitor polls a server-provided monitor URL until the operation it
// represents completes or fails. Obtained from SendMonitored.
type AsyncMonitor[T any] struct {
	provider *Provider
	location string
	getter   ResultGetter[T]

	// sleep waits between polls. Tests override it.
	sleep func(ctx context.Context, d time.Duration) error
}

func newAsyncMonitor[T any](p *Provider, location string, getter ResultGetter[T]) *AsyncMonitor[T] {
	return &AsyncMonitor[T]{
		provider: p,
		location: location,
		getter:   getter,
		sleep:    sleepContext,
	}
}

// Location returns the monitor URL the service handed out.
func (m *AsyncMonitor[T]) Location() string {
	return m.location
}

// Status performs one poll of the monitor URL. When the operation has
// already finished the service answers 303 See Other instead of a status
// body; that is synthesized into a completed status carrying the redirect
// target.
func (m *AsyncMonitor[T]) Status(ctx context.Context) (*AsyncOperationStatus, error) {
	req := NewRequest(http.MethodGet, m.location)

	httpReq, requestBody, err := m.provider.buildHTTPRequest(ctx, req, nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.provider.do(httpReq, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == statusSeeOther {
		return &AsyncOperationStatus{
			Status:         asyncStatusCompleted,
			ResultLocation: resp.Header.Get("Location"),
		}, nil
	}

	if err := m.provider.checkStatus(httpReq, requestBody, resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClientError{Op: "poll status", Err: err}
	}

	var status AsyncOperationStatus
	if err := m.provider.serializer.Unmarshal(raw, &status); err != nil {
		return nil, &ClientError{Op: "poll status", Err: fmt.Errorf("decoding status: %w", err)}
	}

	return &status, nil
}

// PollForResult polls until the operation reaches a terminal status, then
// fetches the final result. progress, when non-nil, receives the reported
// completion percentage scaled to 0-100. The interval sleep is skipped
// before the first poll. A failed operation returns an *AsyncOperationError;
// the result fetch is still attempted first so a failure that nonetheless
// produced a result does not lose it.
func (m *AsyncMonitor[T]) PollForResult(ctx context.Context, interval time.Duration, progress func(percent float64)) (*T, error) {
	var status *AsyncOperationStatus

	for first := true; ; first = false {
		if !first {
			if err := m.sleep(ctx, interval); err != nil {
				return nil, err
			}
		}

		var err error

		status, err = m.Status(ctx)
		if err != nil {
			return nil, err
		}

		if progress != nil && status.PercentageComplete != nil {
			progress(min(*status.PercentageComplete, 100))
		}

		if status.Completed() || status.Failed() {
			break
		}
	}

	location := status.ResultLocation
	if location == "" {
		location = m.location
	}

	result, err := m.getter(ctx, location)

	if status.Failed() {
		return result, &AsyncOperationError{Status: *status}
	}

	return result, err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
