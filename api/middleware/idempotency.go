package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bidhaven-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bidhaven-backend/pkg/redis"
)

const (
	shortReplayTTL = 24 * time.Hour
	longReplayTTL  = 7 * 24 * time.Hour

	idempotencyHeader = "Idempotency-Key"
)

type replayPolicy struct {
	method  string
	segment []string
	ttl     time.Duration
}

func policy(method, pattern string, ttl time.Duration) replayPolicy {
	return replayPolicy{method: method, segment: strings.Split(strings.Trim(pattern, "/"), "/"), ttl: ttl}
}

// Bids are not listed: a retried bid is validated again against the current
// high bid instead of replaying the earlier answer.
var replayPolicies = []replayPolicy{
	policy(http.MethodPost, "/api/v1/listings", shortReplayTTL),
	policy(http.MethodPost, "/api/v1/listings/{}/complete", shortReplayTTL),
	policy(http.MethodPost, "/api/v1/notifications/{}/read", shortReplayTTL),
	policy(http.MethodPost, "/api/v1/notifications/read-all", shortReplayTTL),
	policy(http.MethodPost, "/api/v1/listings/{}/confirm", longReplayTTL),
	policy(http.MethodPost, "/api/v1/listings/{}/ratings", longReplayTTL),
}

// replayTTL matches the request path, so it works from middleware mounted
// before chi has resolved the final route.
func replayTTL(method, path string) (time.Duration, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
next:
	for _, p := range replayPolicies {
		if p.method != method || len(p.segment) != len(parts) {
			continue
		}
		for i, seg := range p.segment {
			if seg != "{}" && seg != parts[i] {
				continue next
			}
		}
		return p.ttl, true
	}
	return 0, false
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// state-changing routes. The key is scoped to the caller, method and path;
// reusing it with a different body is rejected. Server errors are not stored
// so the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)

			raw, err := store.Get(ctx, key)
			switch {
			case err != nil && !errors.Is(err, redis.Nil):
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			case raw != "":
				var prior storedResponse
				if err := json.Unmarshal([]byte(raw), &prior); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
					return
				}
				if prior.RequestHash != hash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				if prior.ContentType != "" {
					w.Header().Set("Content-Type", prior.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(prior.Status)
				_, _ = w.Write(prior.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status >= http.StatusInternalServerError {
				return
			}

			record, err := json.Marshal(storedResponse{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				_, err = store.SetNX(ctx, key, string(record), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
