package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Chain errors
const (
	// Ethereum node
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"

	// Fee market
	CodeFeeMarketInvalidState Code = "FEE_MARKET_INVALID_STATE"
	CodeFeeCapTooLow          Code = "FEE_CAP_TOO_LOW"

	// Block stream
	CodeMalformedHeader       Code = "MALFORMED_HEADER"
	CodeReorgTooDeep          Code = "REORG_TOO_DEEP"
	CodeRetriesExhausted      Code = "RETRIES_EXHAUSTED"
	CodeSourceExhausted       Code = "SOURCE_EXHAUSTED"
	CodeHandlerFailed         Code = "HANDLER_FAILED"
	CodeStreamAlreadyStarted  Code = "STREAM_ALREADY_STARTED"
	CodeBackfillDiscontinuity Code = "BACKFILL_DISCONTINUITY"
	CodeInvalidRange          Code = "INVALID_RANGE"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
