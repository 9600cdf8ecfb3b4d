package rest

// HeaderSessionID carries the ceremony session id between begin and verify.
const HeaderSessionID = "X-Session-Id"

// BeginResponse is the response for the begin endpoints. Options holds the
// WebAuthn creation or request options to hand to the browser.
type BeginResponse struct {
	SessionID string `json:"session_id"`
	Options   any    `json:"options"`
}

// VerifyResponse is the response after a successful verify.
type VerifyResponse struct {
	Verified     bool   `json:"verified"`
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`
	Token        string `json:"token,omitempty"`
}

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidSession     = "invalid_session"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeCredentialNotFound = "credential_not_found"
	ErrorCodeDuplicateCred      = "duplicate_credential"
	ErrorCodeReplayDetected     = "replay_detected"
	ErrorCodeStorageUnavailable = "storage_unavailable"
	ErrorCodeInternalError      = "internal_error"
)
