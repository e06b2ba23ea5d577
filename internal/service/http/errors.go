package httpsvc

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

const (
	codeValidation         = "VALIDATION_ERROR"
	codeOrderNotFound      = "ORDER_NOT_FOUND"
	codeProductNotFound    = "PRODUCT_NOT_FOUND"
	codeProductInUse       = "PRODUCT_IN_USE"
	codeIdempotencyReused  = "IDEMPOTENCY_KEY_REUSED"
	codeIdempotencyPending = "IDEMPOTENCY_REQUEST_IN_PROGRESS"
	codeInternal           = "INTERNAL_ERROR"
	codeNotFound           = "NOT_FOUND"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// respondError переводит доменную ошибку в HTTP-ответ. Всё, что не распознано,
// считается сбоем хранилища и отдаётся без подробностей.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		abortWithError(c, http.StatusBadRequest, codeValidation, flatten(err))
	case errors.Is(err, domain.ErrOrderNotFound):
		abortWithError(c, http.StatusNotFound, codeOrderNotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		abortWithError(c, http.StatusNotFound, codeProductNotFound, domain.ErrProductNotFound.Error())
	case errors.Is(err, domain.ErrProductInUse):
		abortWithError(c, http.StatusConflict, codeProductInUse, domain.ErrProductInUse.Error())
	default:
		h.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"route":  c.FullPath(),
		}).Error("request failed")
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func badRequest(c *gin.Context, message string) {
	abortWithError(c, http.StatusBadRequest, codeValidation, message)
}

// flatten склеивает ошибки errors.Join в одну строку.
func flatten(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, domain.ErrInvalidID.Error())
		return 0, false
	}
	return id, true
}
