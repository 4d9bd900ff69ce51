package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/repositories"
)

// Verifier resolves bearer credentials into stable identities.
// The WebSocket handshake and the HTTP surface both go through it, so
// there is a single place where a token is turned into a user.
type Verifier struct {
	secret []byte
	users  repositories.IUserRepository
	log    *slog.Logger
}

func NewVerifier(secret []byte, users repositories.IUserRepository, log *slog.Logger) *Verifier {
	return &Verifier{secret: secret, users: users, log: log}
}

// Verify validates the token signature and expiry, then resolves the
// embedded user ID against storage. Any failure maps to the fatal
// authentication taxonomy; callers close the connection without
// emitting a protocol-level error.
func (v *Verifier) Verify(ctx context.Context, credential string) (domain.User, error) {
	if credential == "" {
		return domain.User{}, errors.ErrMissingToken
	}

	claims, err := ValidateToken(v.secret, credential)
	if err != nil {
		v.log.Debug("token validation failed", "error", err)
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	user, err := v.users.GetUserByID(claims.UserID)
	if err != nil {
		v.log.Debug("token subject unknown", "user_id", claims.UserID)
		return domain.User{}, errors.ErrUnknownUser
	}

	return user, nil
}

// ExtractToken pulls the bearer credential from an upgrade request.
// Checked in priority order: the token query parameter, the auth
// payload header attached at connection time, then the Authorization
// header with an optional Bearer prefix. First match wins.
func ExtractToken(r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	if token := r.Header.Get("X-Auth-Token"); token != "" {
		return token, nil
	}

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), nil
	}

	return "", errors.ErrMissingToken
}
