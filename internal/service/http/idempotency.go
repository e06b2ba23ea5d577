package httpsvc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

const (
	idempotencyKeyHeader      = "Idempotency-Key"
	idempotencyReplayedHeader = "Idempotent-Replayed"
	maxIdempotencyKeyLength   = 255
)

// capturingWriter дублирует тело ответа, чтобы сохранить его под ключом.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для уже обработанного Idempotency-Key.
// Без заголовка запрос проходит как обычно.
func (h *Handler) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.idem == nil {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			badRequest(c, "idempotency key is too long")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			badRequest(c, "failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		record, err := h.idem.CreateProcessing(ctx, key, requestHash(c.Request.Method, c.FullPath(), body), time.Now().UTC().Add(h.idemTTL))
		if err != nil {
			h.replay(c, err, record)
			return
		}

		logger := h.logger.WithField("idempotency_key", key)
		writer := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		// Паника обработчика долетает до gin.CustomRecovery: ключ освобождается
		// до неё, иначе повтор получал бы 409 до истечения TTL.
		defer func() {
			if recovered := recover(); recovered != nil {
				h.releaseKey(ctx, key, logger)
				panic(recovered)
			}
		}()

		c.Next()

		h.saveOutcome(ctx, key, writer.Status(), writer.body.Bytes(), logger)
	}
}

// saveOutcome фиксирует итог оформления заказа под ключом: 2xx и 4xx
// сохраняются для повтора, 5xx освобождает ключ для новой попытки.
// Отключение клиента после c.Next() итог не отменяет.
func (h *Handler) saveOutcome(ctx context.Context, key string, status int, body []byte, logger *log.Entry) {
	if status >= http.StatusInternalServerError {
		h.releaseKey(ctx, key, logger)
		return
	}

	outcomeCtx, cancel := domain.IdempotencyOutcomeContext(ctx)
	defer cancel()

	if status >= http.StatusBadRequest {
		if err := h.idem.MarkFailed(outcomeCtx, key, body, status); err != nil {
			logger.WithError(err).WithField("http_status", status).Warn("failed to store rejected order response")
		}
		return
	}
	if err := h.idem.MarkDone(outcomeCtx, key, body, status); err != nil {
		logger.WithError(err).WithField("http_status", status).Warn("failed to store order confirmation")
	}
}

func (h *Handler) releaseKey(ctx context.Context, key string, logger *log.Entry) {
	outcomeCtx, cancel := domain.IdempotencyOutcomeContext(ctx)
	defer cancel()

	if err := h.idem.Delete(outcomeCtx, key); err != nil {
		logger.WithError(err).Warn("failed to release idempotency key")
	}
}

func (h *Handler) replay(c *gin.Context, createErr error, record domain.IdempotencyRecord) {
	if !domain.IsIdempotencyConflict(createErr) {
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		abortWithError(c, http.StatusInternalServerError, codeInternal, "failed to initialize idempotency request")
		return
	}
	if errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
		abortWithError(c, http.StatusUnprocessableEntity, codeIdempotencyReused,
			"idempotency key is already used with different request payload")
		return
	}

	switch {
	case record.Replayable():
		c.Header(idempotencyReplayedHeader, "true")
		c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
		c.Abort()
	case record.Status.Completed():
		abortWithError(c, http.StatusInternalServerError, codeInternal, "idempotency cache is empty")
	case record.Status == domain.IdempotencyStatusProcessing:
		abortWithError(c, http.StatusConflict, codeIdempotencyPending,
			"request with the same idempotency key is already processing")
	default:
		abortWithError(c, http.StatusInternalServerError, codeInternal, "unknown idempotency record status")
	}
}

func requestHash(method, route string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(route)+2+len(body))
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, route...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
