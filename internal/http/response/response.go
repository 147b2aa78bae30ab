package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
)

type ErrorInfo struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

type ErrorResponse struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error"`
}

// JSON отправляет успешный ответ: поля payload на верхнем уровне рядом с success=true.
func JSON(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func OK(c *gin.Context, payload gin.H) {
	JSON(c, http.StatusOK, payload)
}

func Created(c *gin.Context, payload gin.H) {
	JSON(c, http.StatusCreated, payload)
}

// Error отправляет ответ об ошибке. Ошибки вне таксономии AppError маскируются и логируются.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.FullPath(),
			"method": c.Request.Method,
		}).Error("внутренняя ошибка запроса")

		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: &ErrorInfo{
				Code:    string(apperror.ErrCodeInternal),
				Message: "внутренняя ошибка сервера",
			},
		})
		return
	}

	if appErr.HTTPStatus >= http.StatusInternalServerError && appErr.Cause != nil {
		logger.Log.WithFields(logrus.Fields{
			"code":   appErr.Code,
			"error":  appErr.Cause.Error(),
			"path":   c.FullPath(),
			"method": c.Request.Method,
		}).Error("ошибка обработки запроса")
	}

	c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{
		Error: &ErrorInfo{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Fields:  appErr.Fields,
		},
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, apperror.New(apperror.ErrCodeBadRequest, message))
}

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	Error(c, apperror.New(apperror.ErrCodeUnauthorized, message))
}

func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "недостаточно прав"
	}
	Error(c, apperror.New(apperror.ErrCodeForbidden, message))
}
