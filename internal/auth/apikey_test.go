package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		header map[string]string
		want   int
	}{
		{"disabled", "", nil, http.StatusNoContent},
		{"missing", "secret", nil, http.StatusUnauthorized},
		{"header ok", "secret", map[string]string{"X-API-Key": "secret"}, http.StatusNoContent},
		{"header wrong", "secret", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"bearer ok", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusNoContent},
		{"bearer lowercase", "secret", map[string]string{"Authorization": "bearer secret"}, http.StatusNoContent},
		{"basic ignored", "secret", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			newRouter(tt.key).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
