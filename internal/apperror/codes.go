package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Connection layer error codes
const (
	// Transport (socket level: refused, timed out, dropped)
	CodeTransportError     Code = "TRANSPORT_ERROR"
	CodeConnectionClosed   Code = "CONNECTION_CLOSED"
	CodeWebSocketSendError Code = "WEBSOCKET_SEND_ERROR"
	CodeRPCError           Code = "RPC_ERROR"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	// Readiness
	CodeMetadataResolutionError Code = "METADATA_RESOLUTION_ERROR"
	CodeConnectionNotReady      Code = "CONNECTION_NOT_READY"
	CodeStaleHandle             Code = "STALE_HANDLE"
	CodeChainNotConfigured      Code = "CHAIN_NOT_CONFIGURED"
	CodeUnsupportedFamily       Code = "UNSUPPORTED_FAMILY"

	// Subscriptions
	CodeDuplicateSubscription   Code = "DUPLICATE_SUBSCRIPTION"
	CodeDecodeError             Code = "DECODE_ERROR"
	CodeSubscriptionInterrupted Code = "SUBSCRIPTION_INTERRUPTED"
	CodeSubscribeFailed         Code = "SUBSCRIBE_FAILED"
	CodeInvalidKey              Code = "INVALID_KEY"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
