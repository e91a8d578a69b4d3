package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/tazhibayda/learnpath-auth/internal/ratelimit"
	"go.uber.org/zap"
)

type RouterOptions struct {
	Logger      *zap.Logger
	Limiter     ratelimit.Limiter // nil disables rate limiting
	CORSOrigins []string
	Production  bool
	TraceName   string // non-empty enables Datadog request spans
}

func NewRouter(h *Handler, o RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if o.TraceName != "" {
		r.Use(Tracing(o.TraceName))
	}
	r.Use(RequestID())
	if o.Logger != nil {
		r.Use(Logger(o.Logger))
	}
	r.Use(Metrics())
	if len(o.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     o.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if !o.Production {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/auth")

	open := api.Group("")
	if o.Limiter != nil {
		open.Use(RateLimit(o.Limiter))
	}
	open.POST("/register", h.Register)
	open.POST("/login", h.Login)
	open.POST("/verify", h.VerifyEmail)
	open.POST("/sendpasswordlink", h.SendPasswordLink)
	open.GET("/forgotpassword/:id/:token", h.CheckResetLink)
	open.POST("/:id/:token", h.ResetPassword)
	open.GET("/google", h.GoogleLogin)
	open.GET("/google/callback", h.GoogleCallback)

	authed := api.Group("", AuthRequired(h.Auth))
	authed.GET("/getUser", h.GetUser)
	authed.PUT("/update-profile", h.UpdateProfile)

	return r
}
