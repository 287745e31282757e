package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/transport/http/api"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

type IdempotencyStore struct {
	db *pgxpool.Pool
}

func NewIdempotencyStore(db *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
  `, tenantID, userID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (tenant_id, user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (tenant_id, user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, tenantID, userID, key, endpoint, requestHash, response)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// IdempotencyKeys is the storage behind Idempotent.
type IdempotencyKeys interface {
	Check(ctx context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

const maxIdempotencyKeyLength = 200

type bufferedResponse struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// Idempotent replays the stored response of a successful authenticated request that carries the
// same Idempotency-Key and body. Reusing a key with a different body is a 409.
func Idempotent(store IdempotencyKeys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			user, ok := GetUser(r.Context())
			if store == nil || key == "" || !ok || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLength {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", requestID)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_body", "could not read request body", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(body)

			stored, found, err := store.Check(r.Context(), user.TenantID, user.UserID, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), requestID)
				return
			}
			if err != nil {
				api.Fail(w, http.StatusInternalServerError, "idempotency_error", "idempotency check failed", requestID)
				return
			}
			if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(stored)
				return
			}

			buf := &bufferedResponse{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(buf, r)
			if buf.status < 200 || buf.status >= 300 || !json.Valid(buf.body.Bytes()) {
				return
			}
			if err := store.Save(r.Context(), user.TenantID, user.UserID, endpoint, key, hash, buf.body.Bytes()); err != nil {
				slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
			}
		})
	}
}
