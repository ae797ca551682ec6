package web

import (
	"net/http"
	"strconv"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/campus-portal/internal/storage/access"
	"github.com/Laisky/campus-portal/library"
	"github.com/Laisky/campus-portal/library/jwt"
	"github.com/Laisky/campus-portal/library/throttle"
)

const principalKey = "campus_portal_principal"

// PrincipalMiddleware authenticates the bearer token, if any.
// Requests without a token continue anonymously; invalid tokens are rejected.
func PrincipalMiddleware(tokens *jwt.JWT) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := library.StripBearerPrefix(ctx.GetHeader("Authorization"))
		if token == "" || tokens == nil {
			ctx.Next()
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			gmw.GetLogger(ctx).Debug("reject bearer token", zap.Error(err))
			abort(ctx, http.StatusUnauthorized, "Invalid token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			abort(ctx, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx.Set(principalKey, &access.Principal{UserID: userID, Admin: claims.Admin})
		ctx.Next()
	}
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx *gin.Context) *access.Principal {
	v, ok := ctx.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*access.Principal)
	return principal
}

// RequireAuth aborts anonymous requests.
func RequireAuth(ctx *gin.Context) {
	if PrincipalFromContext(ctx) == nil {
		abort(ctx, http.StatusUnauthorized, "Authentication required")
		return
	}
	ctx.Next()
}

// RequireAdmin aborts requests from anyone but administrators.
func RequireAdmin(ctx *gin.Context) {
	principal := PrincipalFromContext(ctx)
	switch {
	case principal == nil:
		abort(ctx, http.StatusUnauthorized, "Authentication required")
	case !principal.Admin:
		abort(ctx, http.StatusForbidden, "Access denied")
	default:
		ctx.Next()
	}
}

// throttleUploads rejects uploads once the principal's budget is spent.
// It must run after RequireAuth.
func throttleUploads(th *throttle.Throttle) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if th == nil {
			ctx.Next()
			return
		}

		principal := PrincipalFromContext(ctx)
		if principal == nil || principal.Admin {
			ctx.Next()
			return
		}
		if !th.Allow(strconv.FormatUint(principal.UserID, 10)) {
			gmw.GetLogger(ctx).Info("upload throttled", zap.Uint64("user_id", principal.UserID))
			abort(ctx, http.StatusTooManyRequests, "Too many uploads")
			return
		}
		ctx.Next()
	}
}
