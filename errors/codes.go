// Package errors provides the structured error type shared by the build
// repository packages. Errors carry a string code for programmatic handling,
// a human message, optional context for logging and the underlying cause.
package errors

// ErrorCode classifies an error condition.
// Codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Repository errors.

	// CodeRepository indicates a generic repository failure: clone, fetch,
	// reference resolution, checkout or reset.
	CodeRepository ErrorCode = "REPOSITORY_ERROR"

	// CodeRepositoryFormat indicates a local directory exists but is not a
	// valid working copy of the expected kind. It is never repaired automatically.
	CodeRepositoryFormat ErrorCode = "REPOSITORY_FORMAT"

	// CodePushRejected indicates a push completed but the remote reported a
	// rejection for the pushed reference.
	CodePushRejected ErrorCode = "PUSH_REJECTED"

	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Execution errors.

	// CodeExecutionFailed indicates an external command failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeArchiveFailed indicates an archive could not be produced.
	CodeArchiveFailed ErrorCode = "ARCHIVE_FAILED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
