package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Log       *slog.Logger
	Identity  IdentityChecker
	Users     UserStore
	Jobs      JobStore
	Scanner   Scanner
	Analytics Analytics
	// Nil disables the /auth routes.
	Auth *AuthHandler
	// Nil disables /metrics.
	Metrics http.Handler

	AllowedOrigins []string
}

// HealthCheck is the GET /health endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log))

	config := cors.DefaultConfig()
	config.AllowOrigins = d.AllowedOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "token"}
	config.MaxAge = 12 * time.Hour
	r.Use(cors.New(config))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to NextSteps API"})
	})
	r.GET("/health", HealthCheck)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	if d.Auth != nil {
		a := r.Group("/auth")
		a.GET("/login", d.Auth.Login)
		a.GET("/callback", d.Auth.Callback)
		a.GET("/verify", d.Auth.Verify)
	}

	api := r.Group("/", RequireUser(d.Identity, d.Users))
	{
		scan := NewScanHandler(d.Scanner)
		api.POST("/scan", scan.Scan)
		api.POST("/scan/", scan.Scan)

		jobs := NewJobHandler(d.Jobs)
		api.GET("/jobs", jobs.ListJobs)
		api.GET("/jobs/", jobs.ListJobs)
		api.POST("/jobs", jobs.CreateJob)
		api.POST("/jobs/", jobs.CreateJob)
		api.PUT("/jobs/:id", jobs.UpdateJob)
		api.DELETE("/jobs/:id", jobs.DeleteJob)

		users := NewUserHandler(d.Users)
		api.GET("/users/me", users.Me)
		api.PUT("/users/me", users.UpdateMe)

		analytics := NewAnalyticsHandler(d.Analytics)
		api.GET("/analytics/stats", analytics.Stats)
		api.GET("/analytics/export", analytics.Export)
	}

	return r
}
