package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidDateFormat    ErrorCode = 102
	ErrCodeInvalidTimestamp     ErrorCode = 103

	// Import errors (200-299)
	ErrCodeImportOpenFailed  ErrorCode = 200
	ErrCodeImportEmptyFile   ErrorCode = 201
	ErrCodeImportBadHeader   ErrorCode = 202
	ErrCodeImportNoValidRows ErrorCode = 203

	// Export errors (400-499)
	ErrCodeExportOpenFailed  ErrorCode = 400
	ErrCodeExportWriteFailed ErrorCode = 401
)
