// Package handlers implements the HTTP endpoint surface. Handlers decode
// and validate requests, delegate to the domain services and render the
// documented JSON shapes; every failure is a four-digit coded error.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"kasupel-server/internal/encryption"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/middleware"
	"kasupel-server/internal/models"
)

// PerPage is the page size of every paginated endpoint.
const PerPage = 100

// maxJSONBody bounds ordinary request bodies. Avatar uploads have their own
// larger limit.
const maxJSONBody = 64 * 1024

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Too late for an error response; the status line is already out.
		return
	}
}

// bodyCredentials are the session fields carried inside authenticated POST
// and PATCH bodies.
type bodyCredentials struct {
	SessionID    *int64 `json:"session_id"`
	SessionToken string `json:"session_token"`
}

// readBody reads and, for encrypted endpoints, unwraps the request body.
func readBody(r *http.Request, crypto *encryption.Service, encrypted bool) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return nil, kerrors.New(kerrors.InvalidJSON)
	}
	if encrypted {
		return crypto.DecryptRequest(raw)
	}
	return raw, nil
}

// decodeBody unmarshals a request body into dst, decrypting it first when
// the endpoint requires encryption.
func decodeBody(r *http.Request, crypto *encryption.Service, encrypted bool, dst any) error {
	body, err := readBody(r, crypto, encrypted)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return kerrors.New(kerrors.InvalidJSON)
	}
	return nil
}

// authenticateBody resolves the session fields of an authenticated body.
func authenticateBody(ctx context.Context, auth *middleware.SessionAuth, creds bodyCredentials) (*models.User, *models.Session, error) {
	if creds.SessionID == nil && creds.SessionToken == "" {
		return nil, nil, kerrors.New(kerrors.AuthenticationRequired)
	}
	if creds.SessionID == nil || creds.SessionToken == "" {
		return nil, nil, kerrors.New(kerrors.SessionKeyIncomplete)
	}
	token, err := base64.StdEncoding.DecodeString(creds.SessionToken)
	if err != nil {
		return nil, nil, kerrors.New(kerrors.InvalidBase64)
	}
	return auth.Authenticate(ctx, *creds.SessionID, token)
}

// requireVerified gates verified-only operations.
func requireVerified(user *models.User) error {
	if !user.EmailVerified {
		return kerrors.New(kerrors.EmailNotVerified)
	}
	return nil
}

// pageParam reads the 0-indexed page query parameter, defaulting to 0.
func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, kerrors.New(kerrors.InvalidInteger)
	}
	if page < 0 {
		return 0, kerrors.New(kerrors.PageOutOfRange)
	}
	return page, nil
}

// pageCount converts a row count to a page count.
func pageCount(total int64) int {
	return int((total + PerPage - 1) / PerPage)
}

// checkPage rejects pages past the end. Page 0 of an empty listing is fine.
func checkPage(page int, total int64) (int, error) {
	pages := pageCount(total)
	if pages > 0 && page >= pages {
		return 0, kerrors.New(kerrors.PageOutOfRange)
	}
	return pages, nil
}

// intParam reads a required integer query parameter.
func intParam(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, kerrors.New(kerrors.ValueRequired)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, kerrors.New(kerrors.InvalidInteger)
	}
	return v, nil
}

// NotFound is the catch-all for unknown URLs.
func NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, kerrors.New(kerrors.UnknownEndpoint))
}

// RSAKeyHandler serves the public key clients encrypt sensitive bodies
// against.
func RSAKeyHandler(crypto *encryption.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, crypto.PublicKeyPEM())
	}
}
