// Package rest exposes the passkey ceremonies over HTTP. Handlers parse
// authenticator responses at the boundary and hand typed data to the service.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/augchan42/passkey-backend-demo/internal/passkey"
)

// maxBodyBytes caps credential response payloads.
const maxBodyBytes = 1 << 20

// CeremonyService is the surface of the passkey service the handlers use.
type CeremonyService interface {
	BeginRegistration(ctx context.Context) (*protocol.CredentialCreation, string, error)
	FinishRegistration(ctx context.Context, sessionID string, response *protocol.ParsedCredentialCreationData) (passkey.Result, error)
	BeginAuthentication(ctx context.Context) (*protocol.CredentialAssertion, string, error)
	FinishAuthentication(ctx context.Context, sessionID string, response *protocol.ParsedCredentialAssertionData) (passkey.Result, error)
}

// TokenIssuer signs session tokens for verified users.
type TokenIssuer interface {
	Issue(userID, username, credentialID string) (string, error)
}

// Handler provides HTTP handlers for the passkey ceremonies.
type Handler struct {
	service CeremonyService
	tokens  TokenIssuer
	ready   func(context.Context) error
	logger  *slog.Logger
}

// NewHandler creates a passkey HTTP handler. The token issuer and readiness
// check are optional.
func NewHandler(service CeremonyService) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithTokenIssuer enables session token issuance on successful ceremonies.
func (h *Handler) WithTokenIssuer(tokens TokenIssuer) *Handler {
	h.tokens = tokens
	return h
}

// WithReadyCheck sets the dependency probe for the health endpoint.
func (h *Handler) WithReadyCheck(ready func(context.Context) error) *Handler {
	h.ready = ready
	return h
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /passkey/register. No input is required: the
// server mints a prospective identity and returns creation options.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	options, sessionID, err := h.service.BeginRegistration(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.Header().Set(HeaderSessionID, sessionID)
	h.writeJSON(w, http.StatusOK, BeginResponse{SessionID: sessionID, Options: options})
}

// FinishRegistration handles POST /passkey/register/verify. The body is the
// attestation response, either bare or wrapped in {"session_id", "credential"}.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	sessionID, credential, err := readCeremonyRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session id is required")
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(credential)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), sessionID, parsed)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeVerifyResponse(w, result)
}

// BeginAuthentication handles POST /passkey/authenticate. The flow is
// usernameless: the response carries discoverable request options.
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	options, sessionID, err := h.service.BeginAuthentication(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.Header().Set(HeaderSessionID, sessionID)
	h.writeJSON(w, http.StatusOK, BeginResponse{SessionID: sessionID, Options: options})
}

// FinishAuthentication handles POST /passkey/authenticate/verify.
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	sessionID, credential, err := readCeremonyRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session id is required")
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBytes(credential)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), sessionID, parsed)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeVerifyResponse(w, result)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, ErrorCodeStorageUnavailable, "dependency unavailable")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) writeVerifyResponse(w http.ResponseWriter, result passkey.Result) {
	response := VerifyResponse{
		Verified:     result.Verified,
		UserID:       result.UserID,
		Username:     result.Username,
		CredentialID: result.CredentialID,
	}
	if h.tokens != nil {
		token, err := h.tokens.Issue(result.UserID, result.Username, result.CredentialID)
		if err != nil {
			h.logger.Error("issue session token", "error", err, "user_id", result.UserID)
			h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
			return
		}
		response.Token = token
	}
	h.writeJSON(w, http.StatusOK, response)
}

// readCeremonyRequest extracts the session id and the raw credential response.
// The session id comes from the X-Session-Id header or the session_id field of
// a wrapped body; the header wins when both are present.
func readCeremonyRequest(r *http.Request) (string, []byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", nil, err
	}
	sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))

	var envelope struct {
		SessionID  string          `json:"session_id"`
		Credential json.RawMessage `json:"credential"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Credential) > 0 {
		if sessionID == "" {
			sessionID = strings.TrimSpace(envelope.SessionID)
		}
		return sessionID, envelope.Credential, nil
	}
	return sessionID, body, nil
}

// handleServiceError maps ceremony errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, passkey.ErrChallengeMissing):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "challenge missing or expired")
	case errors.Is(err, passkey.ErrVerificationFailed):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrReplayDetected):
		h.writeError(w, http.StatusForbidden, ErrorCodeReplayDetected, "credential replay detected")
	case errors.Is(err, passkey.ErrCredentialNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeCredentialNotFound, "credential not found")
	case errors.Is(err, passkey.ErrDuplicateCredential):
		h.writeError(w, http.StatusConflict, ErrorCodeDuplicateCred, "credential already registered")
	case errors.Is(err, passkey.ErrStorageUnavailable):
		h.logger.Error("storage unavailable", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeStorageUnavailable, "storage unavailable")
	default:
		h.logger.Error("ceremony failed", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode response", "error", err, "status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
