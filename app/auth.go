package campuslink

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token issuance lives in the external auth service; this side only
// verifies the HS256 signature and extracts the caller's nickname.

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type IdentityClaims struct {
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

func VerifyIdentityToken(token string, secret []byte) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case parsed != nil && parsed.Valid:
		if claims.Nickname == "" {
			return nil, ErrTokenInvalid
		}
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenInvalid
	}
}

type identityKey struct{}

func contextWithNickname(ctx context.Context, nickname string) context.Context {
	return context.WithValue(ctx, identityKey{}, nickname)
}

// NicknameFromRequest extracts the verified nickname from the request
// context. It must only be called in handlers behind IdentityMiddleware.
func NicknameFromRequest(r *http.Request) string {
	nickname, ok := r.Context().Value(identityKey{}).(string)
	if !ok {
		panic("nickname not found in request context: handler is not behind IdentityMiddleware")
	}
	return nickname
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// IdentityMiddleware verifies the bearer token and attaches the caller's
// nickname to the request context.
func IdentityMiddleware(secret []byte) Middleware {
	authErr := NewJsonError(http.StatusUnauthorized, "unauthenticated")

	return func(next http.Handler) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			token := bearerToken(r)
			if token == "" {
				return authErr
			}
			claims, err := VerifyIdentityToken(token, secret)
			if err != nil {
				return authErr
			}
			next.ServeHTTP(w, r.WithContext(contextWithNickname(r.Context(), claims.Nickname)))
			return nil
		}
	}
}
