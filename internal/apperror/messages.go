package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Transport
	CodeTransportError:     "Transport connection failed",
	CodeConnectionClosed:   "Connection closed",
	CodeWebSocketSendError: "Failed to send WebSocket message",
	CodeRPCError:           "Node RPC call failed",
	CodeRateLimitExceeded:  "RPC rate limit exceeded",

	// Readiness
	CodeMetadataResolutionError: "Chain metadata could not be resolved",
	CodeConnectionNotReady:      "Connection is not ready",
	CodeStaleHandle:             "Connection handle is stale",
	CodeChainNotConfigured:      "Chain is not configured",
	CodeUnsupportedFamily:       "Chain family is not supported",

	// Subscriptions
	CodeDuplicateSubscription:   "Subscription already active",
	CodeDecodeError:             "Failed to decode value",
	CodeSubscriptionInterrupted: "Subscription interrupted",
	CodeSubscribeFailed:         "Failed to open subscription",
	CodeInvalidKey:              "Invalid subscription key",

	CodeCircuitOpen: "Circuit breaker is open",
}
