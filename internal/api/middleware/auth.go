package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Verifier checks an access token and returns its subject.
type Verifier interface {
	VerifyAccess(token string) (subject string, err error)
}

const subjectKey ctxKey = iota + 1

// SubjectCtx returns the authenticated subject stored by BearerAuth.
func SubjectCtx(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// BearerAuth rejects requests without a valid access token with 401.
// onReject writes the error body; it keeps this package free of presenter.
func BearerAuth(v Verifier, onReject func(w http.ResponseWriter, r *http.Request, msg string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || tokenStr == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				onReject(w, r, "Authentication credentials were not provided.")
				return
			}

			sub, err := v.VerifyAccess(tokenStr)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				onReject(w, r, "Given token not valid for any token type")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
