package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Price acquisition error codes
const (
	// Caller misuse, fail fast
	CodeUnsupportedChain   Code = "UNSUPPORTED_CHAIN"
	CodeInvalidChainPair   Code = "INVALID_CHAIN_PAIR"
	CodeTaskAlreadyRunning Code = "TASK_ALREADY_RUNNING"
	CodeTaskNotFound       Code = "TASK_NOT_FOUND"

	// Recovered by the next source in priority order
	CodeSourceUnavailable   Code = "SOURCE_UNAVAILABLE"
	CodeSourceNotConfigured Code = "SOURCE_NOT_CONFIGURED"
	CodeMalformedResponse   Code = "MALFORMED_RESPONSE"
	CodeContractUnverified  Code = "CONTRACT_UNVERIFIED"
	CodeContractCallFailed  Code = "CONTRACT_CALL_FAILED"
	CodeRPCConnectionFailed Code = "RPC_CONNECTION_FAILED"

	// Recovered by stale cache, otherwise surfaced as a failure quote
	CodeAllSourcesFailed Code = "ALL_SOURCES_FAILED"

	// Alert delivery
	CodeNotifyFailed Code = "NOTIFY_FAILED"

	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
