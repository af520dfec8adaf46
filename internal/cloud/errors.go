package cloud

import "errors"

// Remote error codes returned by the host in error envelopes. The two
// sets below are closed: a structured code outside both is treated as
// non-retryable rather than guessed at.
const (
	CodeUnavailable        = "unavailable"
	CodeResourceExhausted  = "resource_exhausted"
	CodeDeadlineExceeded   = "deadline_exceeded"
	CodeInternal           = "internal"
	CodeUnknown            = "unknown"
	CodeInvalidArgument    = "invalid_argument"
	CodeFailedPrecondition = "failed_precondition"
	CodeUnauthenticated    = "unauthenticated"
	CodePermissionDenied   = "permission_denied"
	CodeNotFound           = "not_found"
	CodeAlreadyExists      = "already_exists"
	CodeAborted            = "aborted"
	CodeCancelled          = "cancelled"
	CodeDataLoss           = "data_loss"
	CodeUnimplemented      = "unimplemented"
)

var retryableCodes = map[string]struct{}{
	CodeUnavailable:       {},
	CodeResourceExhausted: {},
	CodeDeadlineExceeded:  {},
	CodeInternal:          {},
	CodeUnknown:           {},
}

var fatalCodes = map[string]struct{}{
	CodeInvalidArgument:    {},
	CodeFailedPrecondition: {},
	CodeUnauthenticated:    {},
	CodePermissionDenied:   {},
	CodeNotFound:           {},
	CodeAlreadyExists:      {},
	CodeAborted:            {},
	CodeCancelled:          {},
	CodeDataLoss:           {},
	CodeUnimplemented:      {},
}

// RemoteError is a structured failure reported by the host. Callers
// branch on Code; it is never wrapped by the retry layer.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// IsRetryable reports whether an error may be safely retried. Errors
// without a structured code (transport failures, dropped connections)
// are treated as possible network failures and retried. A structured
// code that belongs to neither closed set defaults to non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var remote *RemoteError
	if !errors.As(err, &remote) {
		// No structured code at all: assume the request may never have
		// reached the host and retry.
		return true
	}

	if _, ok := retryableCodes[remote.Code]; ok {
		return true
	}
	if _, ok := fatalCodes[remote.Code]; ok {
		return false
	}
	return false
}

// CodeOf extracts the structured code from an error, or "" when the
// error carries none.
func CodeOf(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code
	}
	return ""
}
