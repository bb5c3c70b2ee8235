package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestExtractTokenParam(t *testing.T) {
	router := gin.New()
	router.GET("/links/:token", ExtractTokenParam("token", "privateToken"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("privateToken"))
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "hex token", path: "/links/deadbeef01", wantStatus: http.StatusOK, wantBody: "deadbeef01"},
		{name: "dash and underscore", path: "/links/a-b_c", wantStatus: http.StatusOK, wantBody: "a-b_c"},
		{name: "illegal characters", path: "/links/abc%3Bdrop", wantStatus: http.StatusBadRequest},
		{name: "too long", path: "/links/" + strings.Repeat("a", maxTokenParamLen+1), wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}
