package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartmail/pkg/auth"
)

// SubjectKey gin context 中 token subject 的 key
const SubjectKey = "subject"

// AuthMiddleware 校验 Bearer token；失败统一返回 401
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.ExtractToken(c.Request)
		subject, err := auth.ParseToken(raw, jwtSecret)
		if raw == "" || err != nil {
			reason := "invalid token"
			if raw == "" {
				reason = "missing token"
			}
			c.Header("WWW-Authenticate", `Bearer realm="smartmail"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// subjectFrom 取出已认证的调用方，未开启鉴权时为空
func subjectFrom(c *gin.Context) string {
	return c.GetString(SubjectKey)
}
