// Package middleware provides HTTP middleware that resolves the calling subject
// from a bearer token.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrNoSubject is returned by SubjectID when the request was not authenticated.
var ErrNoSubject = errors.New("subject not found in request context")

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const subjectIDKey ContextKey = "subjectID"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (SubjectGetter, error)
}

// SubjectGetter exposes the subject a token was issued for.
type SubjectGetter interface {
	GetSubjectID() uuid.UUID
}

// Auth creates middleware that validates bearer tokens and stores the subject
// ID in the request context. Failures respond with onFail, or a plain 401 when
// onFail is nil.
func Auth(validator TokenValidator, onFail http.HandlerFunc) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				onFail(w, r)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				onFail(w, r)
				return
			}
			subject := claims.GetSubjectID()
			if subject == uuid.Nil {
				onFail(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubjectID(r.Context(), subject)))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" value.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// WithSubjectID returns a context carrying subjectID.
func WithSubjectID(ctx context.Context, subjectID uuid.UUID) context.Context {
	return context.WithValue(ctx, subjectIDKey, subjectID)
}

// SubjectID extracts the authenticated subject ID from the request context.
func SubjectID(r *http.Request) (uuid.UUID, error) {
	id, ok := r.Context().Value(subjectIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrNoSubject
	}
	return id, nil
}
