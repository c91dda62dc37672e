package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"facegallery/internal/auth"
	"facegallery/internal/face"
	"facegallery/internal/gallery"
	"facegallery/internal/httpmiddleware"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects what NewRouter needs.
type RouterConfig struct {
	Service   *gallery.Service
	Tokens    *auth.TokenManager
	Readiness *face.Readiness
	Health    map[string]HealthCheck
	Log       *logrus.Logger

	MaxUploadBytes  int64
	RateLimitPerMin int
	// CORSOrigins lists allowed browser origins. Empty allows any origin
	// without credentials.
	CORSOrigins []string
}

// NewRouter builds the HTTP surface.
func NewRouter(cfg RouterConfig) *gin.Engine {
	h := New(cfg.Service, cfg.Log, cfg.MaxUploadBytes)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(cfg.Log, "/healthz", "/readyz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.Log).GinMiddleware())
	r.MaxMultipartMemory = h.maxUpload + multipartSlack

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(cfg.Health))
	r.GET("/readyz", readyz(cfg.Readiness))

	api := r.Group("/api")
	api.POST("/register", h.register)
	api.POST("/login", h.login)

	authed := api.Group("", auth.Authenticate(cfg.Tokens, cfg.Service))
	ready := requireReady(cfg.Readiness)

	authed.POST("/images/upload",
		auth.RequireRole(string(gallery.RoleAdmin), "Access denied"), ready, h.uploadImage)
	authed.POST("/verify-face",
		auth.RequireRole(string(gallery.RoleStudent), "Only students can verify their face"), ready, h.verifyFace)
	authed.GET("/images", h.listImages)
	authed.GET("/images/:id/download", h.downloadImage)
	authed.DELETE("/images/:id",
		auth.RequireRole(string(gallery.RoleAdmin), "Only admins can delete images"), h.deleteImage)
	authed.GET("/users/students",
		auth.RequireRole(string(gallery.RoleAdmin), "Access denied"), h.listStudents)
	authed.GET("/verify-status", h.verifyStatus)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", httpmiddleware.RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// requireReady answers 503 until the face models are loaded.
func requireReady(r *face.Readiness) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.Next()
			return
		}
		if err := r.Check(); err != nil {
			_, message, _ := lookupError(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": message})
			return
		}
		c.Next()
	}
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}

func readyz(r *face.Readiness) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.JSON(http.StatusOK, gin.H{"status": face.Ready.String()})
			return
		}
		if err := r.Check(); err != nil {
			body := gin.H{"status": r.State().String()}
			if loadErr := r.Err(); loadErr != nil {
				body["error"] = loadErr.Error()
			}
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": r.State().String()})
	}
}
