package onedrive

import "strings"

// ErrorCode is the closed enumeration of error codes the service reports in
// structured error payloads. Unrecognized codes are preserved as opaque
// strings for display; they are never rejected.
type ErrorCode string

const (
	CodeAccessDenied            ErrorCode = "accessDenied"
	CodeActivityLimitReached    ErrorCode = "activityLimitReached"
	CodeAsyncTaskFailed         ErrorCode = "asyncTaskFailed"
	CodeAsyncTaskNotCompleted   ErrorCode = "asyncTaskNotCompleted"
	CodeGeneralException        ErrorCode = "generalException"
	CodeInvalidRange            ErrorCode = "invalidRange"
	CodeInvalidRequest          ErrorCode = "invalidRequest"
	CodeItemNotFound            ErrorCode = "itemNotFound"
	CodeMalwareDetected         ErrorCode = "malwareDetected"
	CodeNameAlreadyExists       ErrorCode = "nameAlreadyExists"
	CodeNotAllowed              ErrorCode = "notAllowed"
	CodeNotSupported            ErrorCode = "notSupported"
	CodeQuotaLimitReached       ErrorCode = "quotaLimitReached"
	CodeResourceModified        ErrorCode = "resourceModified"
	CodeResyncRequired          ErrorCode = "resyncRequired"
	CodeServiceNotAvailable     ErrorCode = "serviceNotAvailable"
	CodeTooManyRedirects        ErrorCode = "tooManyRedirects"
	CodeUnauthenticated         ErrorCode = "unauthenticated"
	CodeUploadSessionFailed     ErrorCode = "uploadSessionFailed"
	CodeUploadSessionIncomplete ErrorCode = "uploadSessionIncomplete"
	CodeUploadSessionNotFound   ErrorCode = "uploadSessionNotFound"
)

// matches reports whether a wire code names this error code.
// Wire codes are matched case-insensitively.
func (c ErrorCode) matches(wire string) bool {
	return strings.EqualFold(string(c), wire)
}
