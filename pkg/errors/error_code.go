package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Command rejections (100-199): the command was refused synchronously and
	// no ledger state changed.
	ErrCodeInsufficientBalance ErrorCode = 100
	ErrCodeUnknownPosition     ErrorCode = 101
	ErrCodeUnknownOrder        ErrorCode = 102
	ErrCodeInvalidClosePercent ErrorCode = 103
	ErrCodeInvalidAmount       ErrorCode = 104
	ErrCodeInvalidLeverage     ErrorCode = 105
	ErrCodeInvalidOrderType    ErrorCode = 106
	ErrCodeInvalidCommand      ErrorCode = 107
	ErrCodeOrderNotOpen        ErrorCode = 108

	// Non-finite input (200-299): NaN or Infinity in a price or amount. The
	// input is discarded without a transition.
	ErrCodeNonFinitePrice  ErrorCode = 200
	ErrCodeNonFiniteAmount ErrorCode = 201

	// Persistence failures (300-399): never unwind an applied transition; the
	// in-memory ledger stays authoritative until the next successful write.
	ErrCodeSnapshotEncode   ErrorCode = 300
	ErrCodeSnapshotDecode   ErrorCode = 301
	ErrCodeStoreUnavailable ErrorCode = 302
	ErrCodeStoreQueryFailed ErrorCode = 303

	// Feed errors (400-499)
	ErrCodeFeedConnect ErrorCode = 400
	ErrCodeFeedDecode  ErrorCode = 401

	// Engine lifecycle errors (500-599)
	ErrCodeEngineClosed ErrorCode = 500
)
