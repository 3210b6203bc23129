package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",

	CodeFeeMarketInvalidState: "Fee market state is invalid",
	CodeFeeCapTooLow:          "Fee cap is below the base fee",

	CodeMalformedHeader:       "Block header is malformed",
	CodeReorgTooDeep:          "Reorg exceeds the maximum depth",
	CodeRetriesExhausted:      "Retry budget exhausted",
	CodeSourceExhausted:       "Block source exhausted",
	CodeHandlerFailed:         "Event handler failed",
	CodeStreamAlreadyStarted:  "Stream already started",
	CodeBackfillDiscontinuity: "Backfill range is not continuous",
	CodeInvalidRange:          "Invalid block range",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeCircuitOpen: "Circuit breaker is open",
}

// transient lists the codes a caller may retry.
var transient = map[Code]bool{
	CodeServiceTimeout:           true,
	CodeServiceUnavailable:       true,
	CodeRateLimitExceeded:        true,
	CodeEthereumConnectionFailed: true,
	CodeEthereumRPCError:         true,
	CodeWebSocketConnectionError: true,
	CodeCircuitOpen:              true,
}
