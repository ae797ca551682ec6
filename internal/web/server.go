// Package web is the gin HTTP surface of the storage core.
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Laisky/campus-portal/library/jwt"
	"github.com/Laisky/campus-portal/library/log"
	"github.com/Laisky/campus-portal/library/throttle"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Files *FilesController
	Admin *AdminController
	// Entities is optional; without it entity deletion and images are not routed.
	Entities *EntitiesController
	// UploadThrottle limits uploads per user; nil disables limiting.
	UploadThrottle *throttle.Throttle
	// Tokens verifies bearer tokens; nil treats every request as anonymous.
	Tokens *jwt.JWT
	// CORSDomains lists the domains, and their subdomains, allowed to call the API from browsers.
	CORSDomains []string
	Logger      logSDK.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opt RouterOptions) (*gin.Engine, error) {
	if opt.Files == nil {
		return nil, errors.New("files controller is required")
	}
	if opt.Logger == nil {
		opt.Logger = log.Logger.Named("gin")
	}

	server := gin.New()
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(opt.Logger),
		),
		newCORSMiddleware(opt.CORSDomains),
		PrincipalMiddleware(opt.Tokens),
	)

	server.Any("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world")
	})
	server.GET("/metrics", gin.WrapH(promhttp.Handler()))

	files := server.Group("/files")
	files.GET("/:disk/:filename", opt.Files.Serve)
	files.HEAD("/:disk/:filename", opt.Files.Serve)
	files.POST("/:disk", RequireAuth, throttleUploads(opt.UploadThrottle), opt.Files.Upload)
	files.DELETE("/:disk/:filename", RequireAdmin, opt.Files.Delete)

	if opt.Admin != nil {
		admin := server.Group("/admin", RequireAdmin)
		admin.GET("/usage", opt.Admin.AllUsage)
		admin.GET("/usage/:disk", opt.Admin.Usage)
		admin.GET("/cleanup/:disk", opt.Admin.LastSweep)
		admin.POST("/cleanup/:disk", opt.Admin.Sweep)
	}
	if opt.Entities != nil {
		entities := server.Group("/admin/entities", RequireAdmin)
		entities.DELETE("/:kind/:id", opt.Entities.Delete)
		entities.PUT("/:kind/:id/image", opt.Entities.SetImage)
	}

	return server, nil
}

// RunServer serves handler on addr until ctx is done, then shuts down gracefully.
func RunServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info("listening on http", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

// newCORSMiddleware echoes allowed origins and rejects preflights from the rest.
func newCORSMiddleware(domains []string) gin.HandlerFunc {
	allowed := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.Trim(strings.TrimSpace(d), ".")); d != "" {
			allowed = append(allowed, d)
		}
	}

	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		allowedOrigin := ""

		if origin != "" {
			parsedOriginURL, err := url.Parse(origin)
			if err == nil && isAllowedHost(strings.ToLower(parsedOriginURL.Hostname()), allowed) {
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			ctx.Header("Access-Control-Allow-Origin", allowedOrigin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, HEAD")
			ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")
			ctx.Header("Access-Control-Max-Age", "86400") // 24 hours
			ctx.Header("Vary", "Origin")

			if ctx.Request.Method == http.MethodOptions {
				ctx.AbortWithStatus(http.StatusNoContent)
				return
			}
		} else if origin != "" && ctx.Request.Method == http.MethodOptions {
			// deny preflights from disallowed origins
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}

		ctx.Next()
	}
}

func isAllowedHost(host string, domains []string) bool {
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
