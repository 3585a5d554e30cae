package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/bidhaven-backend/api/responses"
	"github.com/angelmondragon/bidhaven-backend/pkg/auth"
	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

// Auth verifies the bearer token and stores the caller id on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	signer, cfgErr := auth.NewSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if cfgErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, cfgErr, "auth misconfigured"))
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			userID, err := signer.Verify(raw)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrExpired) {
					msg = "token expired"
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx = WithUserID(ctx, userID.String())
			if logg != nil {
				ctx = logg.WithField(ctx, "user_id", userID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// WebSocket upgrade, so the access_token query parameter is accepted as well.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
