package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/log"
	"go.uber.org/zap"
)

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindValidation:            http.StatusBadRequest,
	apperrors.KindDuplicateEmail:        http.StatusBadRequest,
	apperrors.KindNotFound:              http.StatusNotFound,
	apperrors.KindInvalidCredentials:    http.StatusBadRequest,
	apperrors.KindEmailNotVerified:      http.StatusBadRequest,
	apperrors.KindInvalidCode:           http.StatusBadRequest,
	apperrors.KindTokenExpired:          http.StatusUnauthorized,
	apperrors.KindInvalidToken:          http.StatusUnauthorized,
	apperrors.KindInvalidOrExpiredToken: http.StatusUnauthorized,
	apperrors.KindUnauthorized:          http.StatusUnauthorized,
	apperrors.KindUserNotFound:          http.StatusUnauthorized,
	apperrors.KindRateLimited:           http.StatusTooManyRequests,
	apperrors.KindDownstream:            http.StatusInternalServerError,
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// respondError writes err as {"message","code"}. override remaps individual kinds
// for routes whose contract differs from the default table.
func respondError(c *gin.Context, err error, override ...map[apperrors.Kind]int) {
	kind := apperrors.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	for _, o := range override {
		if s, ok := o[kind]; ok {
			status = s
		}
	}

	lg := log.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("request failed", zap.String("code", string(kind)), zap.Error(err))
	} else {
		lg.Debug("request rejected", zap.String("code", string(kind)), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Message: apperrors.MessageOf(err), Code: string(kind)})
}

var notFoundAsBadRequest = map[apperrors.Kind]int{apperrors.KindNotFound: http.StatusBadRequest}
