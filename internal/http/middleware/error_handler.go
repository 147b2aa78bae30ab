package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/logger"
)

// ErrorHandler отправляет последнюю ошибку из c.Errors, если обработчик не записал ответ.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		response.Error(c, c.Errors.Last().Err)
	}
}

// Recovery превращает панику обработчика в ответ 500 без деталей.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Log.WithFields(logrus.Fields{
			"panic":  fmt.Sprint(recovered),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("паника при обработке запроса")

		response.Error(c, fmt.Errorf("panic: %v", recovered))
	})
}
