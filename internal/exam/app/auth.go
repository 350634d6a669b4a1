package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// actorClaims is the internal claims type used for JWT parsing.
type actorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Room string `json:"room"`
}

// tokenVerifier turns a bearer token into an authenticated actor. The
// transport only verifies identity; room and role authorization stay in the
// core.
type tokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func newTokenVerifier(secret string, now func() time.Time) tokenVerifier {
	if now == nil {
		now = time.Now
	}
	return tokenVerifier{secret: []byte(secret), now: now}
}

func (v tokenVerifier) configured() bool {
	return len(v.secret) > 0
}

// Verify parses and validates a bearer token and returns the actor it names.
func (v tokenVerifier) Verify(token string) (domain.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Actor{}, apperrors.New(apperrors.CodeNotAuthorized, "bearer token is required")
	}

	var parsed actorClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.Actor{}, apperrors.Wrap(apperrors.CodeNotAuthorized, "bearer token is invalid", err)
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return domain.Actor{}, apperrors.New(apperrors.CodeNotAuthorized, "bearer token has no subject")
	}
	role, ok := domain.ParseRole(parsed.Role)
	if !ok {
		return domain.Actor{}, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"bearer token carries an unknown role", map[string]string{"role": parsed.Role})
	}
	return domain.Actor{
		ID:     subject,
		Role:   role,
		RoomID: strings.TrimSpace(parsed.Room),
	}, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
