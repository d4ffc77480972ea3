// Package auth resolves the acting user from a bearer token. Session and
// login mechanics live elsewhere; this package only verifies the signed
// token and carries the user id through the request context.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

type contextKey struct{}

// UserContext is the authenticated caller.
type UserContext struct {
	UserID int64
}

// Claims are the token claims the service reads. The user id is taken from
// "id" when present and from "sub" otherwise.
type Claims struct {
	UserID json.Number `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC signed tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer disables issuer checks.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses a raw token and returns the caller.
func (v *Verifier) Verify(raw string) (*UserContext, error) {
	if len(v.secret) == 0 {
		return nil, errors.New(errors.ErrCodeUnauthorized, "token verification is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}

	idStr := claims.UserID.String()
	if idStr == "" {
		idStr = claims.Subject
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New(errors.ErrCodeUnauthorized, fmt.Sprintf("token carries no usable user id (%q)", idStr))
	}
	return &UserContext{UserID: id}, nil
}

// VerifyHeader accepts an Authorization header value.
func (v *Verifier) VerifyHeader(header string) (*UserContext, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	}
	return v.Verify(strings.TrimSpace(token))
}

// WithUserContext stores the caller on ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, uc)
}

// GetUserContext returns the caller stored on ctx.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(contextKey{}).(*UserContext)
	if !ok || uc == nil {
		return nil, errors.New(errors.ErrCodeUnauthorized, "no authenticated user")
	}
	return uc, nil
}
