package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeUnsupportedChain:   "Chain is not configured",
	CodeInvalidChainPair:   "Chain pair must be encoded as chain:pair",
	CodeTaskAlreadyRunning: "Already monitoring this task",
	CodeTaskNotFound:       "Monitoring task not found",

	CodeSourceUnavailable:   "Price source unavailable",
	CodeSourceNotConfigured: "Price source not configured for chain",
	CodeMalformedResponse:   "Malformed price response",
	CodeContractUnverified:  "Contract does not expose the expected method",
	CodeContractCallFailed:  "Contract call failed",
	CodeRPCConnectionFailed: "Failed to connect to RPC endpoint",

	CodeAllSourcesFailed: "All price sources failed",

	CodeNotifyFailed: "Alert delivery failed",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeCircuitOpen: "Circuit breaker is open",
}
