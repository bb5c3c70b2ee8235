package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// maxTokenParamLen ограничивает длину токена в URL
const maxTokenParamLen = 128

// ExtractTokenParam создает middleware для извлечения и валидации токена из URL.
// paramName - имя параметра в URL (например, "token").
// contextKey - ключ, под которым очищенное значение будет сохранено в контексте Gin.
// Допустимы латинские буквы, цифры, '-' и '_'.
func ExtractTokenParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Param(paramName))
		if !validTokenParam(token) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", paramName), "error_type": "validation_error"})
			c.Abort()
			return
		}
		c.Set(contextKey, token)
		c.Next()
	}
}

func validTokenParam(token string) bool {
	if token == "" || len(token) > maxTokenParamLen {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
