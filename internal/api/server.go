package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Kerhoff/vpcs/internal/auth"
	"github.com/Kerhoff/vpcs/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigins enables CORS with credentials for these origins.
	AllowedOrigins []string
	VAPIDPublicKey string
	// InsecureCookies drops the Secure flag for local development over http.
	InsecureCookies bool
	RateLimit       int
	RateWindow      time.Duration
}

// Server provides the HTTP API.
type Server struct {
	svc     *service.Service
	auth    *auth.Service
	feed    *VendorFeed
	limiter *rateLimiter
	logger  *logrus.Logger
	opts    Options
	engine  *gin.Engine
}

// NewServer creates a Server, registers all routes, and subscribes the vendor
// feed to resolution events.
func NewServer(svc *service.Service, authSvc *auth.Service, opts Options, logger *logrus.Logger) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 100
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	s := &Server{
		svc:     svc,
		auth:    authSvc,
		feed:    NewVendorFeed(logger),
		limiter: newRateLimiter(opts.RateLimit, opts.RateWindow, time.Now),
		logger:  logger,
		opts:    opts,
		engine:  gin.New(),
	}
	svc.AddListener(s.feed)
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Feed returns the vendor live feed.
func (s *Server) Feed() *VendorFeed {
	return s.feed
}

// RunJanitor drops expired rate limit windows until ctx is done.
func (s *Server) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RateWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup()
		}
	}
}

func (s *Server) routes() {
	r := s.engine
	r.Use(s.requestLogger(), s.recovery())
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(s.limiter.middleware())

	r.GET("/health", s.handleHealth)
	r.POST("/purchase-request", s.handlePurchaseRequest)
	r.POST("/approval-response", s.handleApprovalResponse)

	api := r.Group("/api")
	api.GET("/push/public-key", s.handlePublicKey)
	api.POST("/register/start", s.handleRegisterStart)
	api.POST("/register/finish", s.handleRegisterFinish)
	api.POST("/login/start", s.handleLoginStart)
	api.POST("/login/finish", s.handleLoginFinish)
	api.POST("/logout", s.handleLogout)
	api.GET("/invite/validate/:token", s.handleInviteValidate)
	api.POST("/invite/start", s.handleInviteStart)
	api.POST("/invite/finish", s.handleInviteFinish)

	protected := api.Group("")
	protected.Use(s.authRequired())
	protected.GET("/me", s.handleMe)

	// Family
	protected.GET("/family/settings", s.handleGetFamilySettings)
	protected.PUT("/family/settings", s.handleSaveFamilySettings)
	protected.PUT("/family/limits", s.handleSetDefaultLimit)
	protected.GET("/family/limits/vendors", s.handleListVendorLimits)
	protected.PUT("/family/limits/vendors/:vendorId", s.handleSetVendorLimit)
	protected.DELETE("/family/limits/vendors/:vendorId", s.handleDeleteVendorLimit)
	protected.GET("/family/transactions", s.handleFamilyTransactions)
	protected.POST("/invite/create", s.handleInviteCreate)

	// Push
	protected.POST("/push/subscribe", s.handleSubscribe)
	protected.DELETE("/push/subscribe", s.handleUnsubscribe)
	protected.GET("/push/subscriptions", s.handleListSubscriptions)
	protected.GET("/push/status/:subscriptionId", s.handleSubscriptionStatus)
	protected.POST("/push/respond/:transactionId", s.handlePushRespond)
	protected.GET("/push/settings", s.handleGetPushSettings)
	protected.PUT("/push/settings", s.handleUpdatePushSettings)
	protected.POST("/push/send-test", s.handleSendTest)

	// Vendor
	protected.GET("/vendor/profile", s.handleGetVendorProfile)
	protected.PUT("/vendor/profile", s.handleSaveVendorProfile)
	protected.POST("/vendor/payment-request", s.handleVendorPayment)
	protected.GET("/vendor/history", s.handleVendorHistory)
	protected.POST("/vendor/family-info", s.handleFamilyInfo)
	protected.GET("/vendor/surname/:family_number", s.handleCachedSurname)
	protected.GET("/vendor/ws", s.handleVendorWS)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handlePublicKey(c *gin.Context) {
	if s.opts.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": s.opts.VAPIDPublicKey})
}
