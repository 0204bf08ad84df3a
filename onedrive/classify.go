package onedrive

// resultShape is what the caller declared it wants back.
type resultShape int

const (
	// shapeObject expects a deserialized JSON result.
	shapeObject resultShape = iota

	// shapeStream expects the raw response body.
	shapeStream

	// shapeMonitor expects a long-running operation handle.
	shapeMonitor
)

// outcome is the pipeline's classification of one response.
type outcome int

const (
	// outcomeError raises a *ServiceError (*FatalServiceError at 500+).
	outcomeError outcome = iota

	// outcomeNoResult is a valid, resultless response.
	outcomeNoResult

	// outcomeAccepted carries an async-monitor Location; no body is read.
	outcomeAccepted

	// outcomeJSON deserializes the body into the caller's type.
	outcomeJSON

	// outcomeStream hands the open body to the caller.
	outcomeStream
)

// classify maps (status, content type, caller-declared result shape) to an
// outcome. Pure function; rules apply in priority order: errors first, then
// the bodyless statuses, then the async-accepted case, then content type.
func classify(status int, contentType string, shape resultShape) outcome {
	switch {
	case status >= clientErrorThreshold:
		return outcomeError
	case status == statusNoContent || status == statusNotModified:
		return outcomeNoResult
	case status == statusAccepted && shape == shapeMonitor:
		return outcomeAccepted
	case isJSONContentType(contentType):
		return outcomeJSON
	default:
		return outcomeStream
	}
}
