package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mivahub/mivahub-backend/api/responses"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	pkgredis "github.com/mivahub/mivahub-backend/pkg/redis"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayHeader         = "X-Idempotent-Replay"
	maxIdempotencyKeyLen = 255
	pendingTTL           = 2 * time.Minute
	defaultReplayTTL     = 24 * time.Hour
)

// IdempotencyPolicy configures Idempotent for one route.
type IdempotencyPolicy struct {
	// Required rejects requests that carry no Idempotency-Key.
	Required bool
	// TTL is how long a finished response stays replayable.
	TTL time.Duration
}

// storedResponse is the Redis value behind one key. Pending marks a request
// still running; its Token identifies the claimant.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Token       string `json:"token,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent makes a mutating route safe to retry. The first request with a
// key claims it and runs; repeats replay the stored response, or get a
// conflict while the first is still running or when the body differs. 5xx
// responses release the key so the client can retry for real. The body is
// hashed as the handler reads it, so uploads are never buffered here.
func Idempotent(store pkgredis.IdempotencyStore, policy IdempotencyPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	if policy.TTL <= 0 {
		policy.TTL = defaultReplayTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case idemKey == "" && policy.Required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			case idemKey == "":
				next.ServeHTTP(w, r)
				return
			case len(idemKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" is too long"))
				return
			}

			key := store.IdempotencyKey(callerKey(ctx)+" "+r.Method+" "+r.URL.Path, idemKey)
			claim, err := json.Marshal(storedResponse{Pending: true, Token: uuid.NewString()})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim"))
				return
			}
			won, err := store.SetNX(ctx, key, string(claim), pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !won {
				replay(ctx, w, r, store, key, logg)
				return
			}

			hasher := sha256.New()
			body := r.Body
			r.Body = hashingBody{Reader: io.TeeReader(body, hasher), Closer: body}
			rec := &bodyRecorder{ResponseWriter: w}
			defer func() {
				if rv := recover(); rv != nil {
					release(context.WithoutCancel(ctx), store, key, string(claim), logg)
					panic(rv)
				}
			}()
			next.ServeHTTP(rec, r)
			// Whatever the handler left unread still counts toward the fingerprint.
			_, _ = io.Copy(hasher, body)

			finish(context.WithoutCancel(ctx), store, key, string(claim), rec, sum(hasher), policy.TTL, logg)
		})
	}
}

func finish(ctx context.Context, store pkgredis.IdempotencyStore, key, claim string, rec *bodyRecorder, fingerprint string, ttl time.Duration, logg *logger.Logger) {
	status := rec.statusOrOK()
	if status >= http.StatusInternalServerError {
		release(ctx, store, key, claim, logg)
		return
	}

	done, err := json.Marshal(storedResponse{
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
	})
	if err != nil {
		logError(ctx, logg, "idempotency.encode.failed", err)
		return
	}
	swapped, err := store.CompareAndSwap(ctx, key, claim, string(done), ttl)
	if err != nil {
		logError(ctx, logg, "idempotency.store.failed", err)
		return
	}
	if !swapped && logg != nil {
		logg.Warn(logg.WithField(ctx, "status", status), "idempotency.claim.lost")
	}
}

// release drops the pending claim so the client can retry with the same key.
func release(ctx context.Context, store pkgredis.IdempotencyStore, key, claim string, logg *logger.Logger) {
	if _, err := store.CompareAndDelete(ctx, key, claim); err != nil {
		logError(ctx, logg, "idempotency.release.failed", err)
	}
}

func replay(ctx context.Context, w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotent request expired mid-flight; retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, r.Body); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
		return
	}
	if sum(hasher) != stored.Fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

type hashingBody struct {
	io.Reader
	io.Closer
}

// bodyRecorder keeps a copy of the response for later replay.
type bodyRecorder struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (b *bodyRecorder) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

func (b *bodyRecorder) Unwrap() http.ResponseWriter { return b.ResponseWriter }

func (b *bodyRecorder) statusOrOK() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil {
		logg.Error(ctx, msg, err)
	}
}
