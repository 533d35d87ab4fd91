package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"
	"smallbiznis-picks/pkg/rediskey"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
	idempotencyLockTTL      = 30 * time.Second
)

// IdempotencyStore keeps replayable responses keyed by request.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type redisStore struct {
	rdb *redis.Client
}

func NewRedisIdempotencyStore(rdb *redis.Client) IdempotencyStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *redisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type storedResponse struct {
	RequestHash string `json:"requestHash"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutating request that carries
// an Idempotency-Key already seen for the same method and path. Reusing a key
// with a different body is a conflict. Responses with a 5xx status are not
// stored so the client can retry them. When the store is unreachable the
// request passes through; the ledger's own reference keys still hold.
func Idempotency(store IdempotencyStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		if len(key) > maxIdempotencyKeyLength {
			abortWith(c, errutil.StatusBadRequest, "idempotency key too long")
			return
		}

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWith(c, errutil.StatusBadRequest, "unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(payload))

		sum := sha256.Sum256(payload)
		requestHash := hex.EncodeToString(sum[:])

		ctx := c.Request.Context()
		zapLog := logger.FromContext(ctx).With(zap.String("idempotency_key", key))
		cacheKey := rediskey.BuildIdempotencyKey(c.Request.Method, c.Request.URL.Path, key)

		raw, found, err := store.Get(ctx, cacheKey)
		if err != nil {
			zapLog.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if found {
			var stored storedResponse
			if err := json.Unmarshal(raw, &stored); err != nil {
				zapLog.Warn("discarding unreadable idempotent response", zap.Error(err))
			} else {
				if stored.RequestHash != requestHash {
					abortWith(c, errutil.StatusConflict, "idempotency key reused with a different request")
					return
				}

				c.Header(IdempotencyReplayedHeader, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
		}

		lockKey := rediskey.BuildIdempotencyLockKey(c.Request.Method, c.Request.URL.Path, key)
		acquired, err := store.SetNX(ctx, lockKey, []byte(requestHash), idempotencyLockTTL)
		if err != nil {
			zapLog.Warn("idempotency lock unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			abortWith(c, errutil.StatusConflict, "a request with this idempotency key is in progress")
			return
		}

		storeCtx := context.WithoutCancel(ctx)
		defer func() {
			if err := store.Del(storeCtx, lockKey); err != nil {
				zapLog.Warn("failed to release idempotency lock", zap.Error(err))
			}
		}()

		writer := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			return
		}

		data, err := json.Marshal(storedResponse{
			RequestHash: requestHash,
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		})
		if err != nil {
			zapLog.Warn("failed to encode idempotent response", zap.Error(err))
			return
		}

		if err := store.Set(storeCtx, cacheKey, data, ttl); err != nil {
			zapLog.Warn("failed to store idempotent response", zap.Error(err))
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func abortWith(c *gin.Context, code errutil.CoreStatus, message string) {
	c.AbortWithStatusJSON(code.HTTPStatus(), errutil.BaseError{Code: code, Message: message}.JSON())
}
