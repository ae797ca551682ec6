package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

func TestCORSMiddleware(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedCORS   bool
		expectedOrigin string
	}{
		{
			name:           "No origin header - should pass through",
			method:         "GET",
			origin:         "",
			expectedStatus: http.StatusOK,
			expectedCORS:   false,
		},
		{
			name:           "Allowed domain - exact match",
			method:         "GET",
			origin:         "https://campus.example.edu",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
			expectedOrigin: "https://campus.example.edu",
		},
		{
			name:           "Allowed domain - subdomain",
			method:         "GET",
			origin:         "https://clubs.campus.example.edu:8443",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
			expectedOrigin: "https://clubs.campus.example.edu:8443",
		},
		{
			name:           "Suffix without dot boundary is rejected",
			method:         "GET",
			origin:         "https://evilcampus.example.edu",
			expectedStatus: http.StatusOK,
			expectedCORS:   false,
		},
		{
			name:           "Allowed preflight",
			method:         "OPTIONS",
			origin:         "https://campus.example.edu",
			expectedStatus: http.StatusNoContent,
			expectedCORS:   true,
			expectedOrigin: "https://campus.example.edu",
		},
		{
			name:           "Disallowed preflight",
			method:         "OPTIONS",
			origin:         "https://example.com",
			expectedStatus: http.StatusForbidden,
			expectedCORS:   false,
		},
		{
			name:           "Malformed origin",
			method:         "GET",
			origin:         "://bad",
			expectedStatus: http.StatusOK,
			expectedCORS:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(newCORSMiddleware([]string{" Campus.Example.EDU. ", ""}))
			router.Any("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "ok")
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCORS {
				assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "DELETE"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestNewRouterRequiresFilesController(t *testing.T) {
	_, err := NewRouter(RouterOptions{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	setupGinTestMode()
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello, world", w.Body.String())

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
