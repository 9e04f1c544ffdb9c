package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/handler"
	"github.com/stemsi/exstem-timetable/internal/middleware"
	"github.com/stemsi/exstem-timetable/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Teacher   *handler.TeacherHandler
	Timetable *handler.TimetableHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// Background goroutines owned by the router (rate limiter sweeps) stop when
// stop is closed.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
	stop <-chan struct{},
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID + request-scoped logger, then the access log that reads it.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.RequestLogger())

	if cfg.CompressMinBytes > 0 {
		router.Use(middleware.Compress(5, cfg.CompressMinBytes))
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMin, time.Minute, stop)
	authAPI := router.Group("/api/v1/auth")
	{
		authAPI.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		authAPI.GET("/me", middleware.RequireJWT(auth), handlers.Auth.Me)
	}

	// ─── 2. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireJWT(auth), middleware.RequireAdmin())
	{
		adminAPI.GET("/teachers", handlers.Teacher.ListTeachers)
		adminAPI.POST("/teachers", handlers.Teacher.CreateTeacher)
		adminAPI.DELETE("/teachers/:id", handlers.Teacher.DeleteTeacher)
	}

	// ─── 3. Timetable Group (Admin or Teacher) ─────────────────────────
	timetableAPI := router.Group("/api/v1/timetable")
	timetableAPI.Use(middleware.RequireJWT(auth))
	{
		timetableAPI.GET("/teacher", handlers.Timetable.GetTeacherTimetable)
		timetableAPI.PUT("/teacher", handlers.Timetable.ReplaceTeacherTimetable)
		timetableAPI.GET("/class", handlers.Timetable.GetClassTimetable)
		timetableAPI.GET("/classes", handlers.Timetable.ListClasses)
	}

	// ─── 4. WebSocket Group (token via query) ──────────────────────────
	wsAPI := router.Group("/ws/v1")
	wsAPI.Use(middleware.RequireJWT(auth))
	{
		wsAPI.GET("/timetable/class", handlers.WS.ClassTimetableStream)
	}

	return router
}
