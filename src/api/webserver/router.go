package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/stake-plus/escrow-market/src/api/config"
	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/notify"
	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/api/storage"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Market *market.Service
	Notify *notify.Dispatcher
	Hub    *realtime.Hub
	Store  storage.Store
}

// NewRouter builds the gin engine. The returned func stops the rate
// limiter's background cleanup.
func NewRouter(cfg config.Config, d Deps) (*gin.Engine, func()) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(), Recovery())
	r.MaxMultipartMemory = 8 << 20
	limiter := attachRoutes(r, cfg, d)
	return r, limiter.Stop
}

func attachRoutes(r *gin.Engine, cfg config.Config, d Deps) *RateLimiter {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", adminWalletHeader, requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	secret := []byte(cfg.JWTSecret)
	limiter := NewRateLimiter(cfg.RateLimit, time.Minute)
	limit := RateLimitMiddleware(limiter)
	jwtAuth := JWTMiddleware(secret)

	authH := NewAuth(d.Redis, d.Market, secret, cfg.TokenTTL.Duration)
	jobH := NewJobs(d.Market)
	bidH := NewBids(d.Market)
	contractH := NewContracts(d.Market)
	noteH := NewNotifications(d.Notify)
	msgH := NewMessages(d.Market)
	reviewH := NewReviews(d.Market)
	reportH := NewReports(d.Market)
	userH := NewUsers(d.Market, d.Store)
	fileH := NewFiles(d.Store, d.Market, cfg.Storage.MaxUpload)
	wsH := NewRealtime(d.Hub, secret)

	r.GET("/health", health(d))
	r.GET("/ws", wsH.Connect)

	public := r.Group("/", limit)
	{
		public.POST("/auth/challenge", authH.Challenge)
		public.POST("/auth/verify", authH.Verify)
		public.GET("/jobs", jobH.List)
		public.GET("/jobs/:id", jobH.Get)
		public.GET("/users/:id", userH.Get)
		public.GET("/reviews/user/:id", reviewH.ForUser)
		public.GET("/api/ipfs/:cid", fileH.Get)
		public.GET("/api/ipfs/:cid/metadata", fileH.Metadata)
	}

	secured := r.Group("/", jwtAuth, limit)
	{
		secured.GET("/auth/me", authH.Me)
		secured.PATCH("/users/me", userH.UpdateMe)
		secured.PUT("/users/me/avatar", userH.SetAvatar)

		secured.POST("/jobs", jobH.Create)
		secured.PATCH("/jobs/:id", jobH.Update)
		secured.DELETE("/jobs/:id", jobH.Delete)
		secured.GET("/jobs/mine/list", jobH.Mine)

		secured.POST("/bids", bidH.Create)
		secured.GET("/bids/mine", bidH.Mine)
		secured.GET("/bids/job/:id", bidH.ForJob)
		secured.PATCH("/bids/:id", bidH.Update)
		secured.DELETE("/bids/:id", bidH.Withdraw)
		secured.POST("/bids/:id/accept", bidH.Accept)
		secured.POST("/bids/:id/reject", bidH.Reject)

		secured.POST("/contracts", contractH.Create)
		secured.GET("/contracts/mine", contractH.Mine)
		secured.GET("/contracts/:id", contractH.Get)
		secured.GET("/contracts/:id/payments", contractH.Payments)
		secured.POST("/contracts/:id/sign", contractH.Sign())
		secured.POST("/contracts/:id/cancel", contractH.Cancel())
		secured.POST("/contracts/:id/dispute", contractH.Dispute)
		secured.POST("/contracts/:id/sync", contractH.Sync)

		secured.POST("/work/:id/submit", contractH.SubmitWork)
		secured.POST("/work/:id/approve", contractH.Approve())
		secured.POST("/work/:id/reject", contractH.RejectWork)

		secured.GET("/notifications", noteH.List)
		secured.GET("/notifications/unread-count", noteH.UnreadCount)
		secured.PATCH("/notifications/read-all", noteH.MarkAllRead)
		secured.PATCH("/notifications/:id/read", noteH.MarkRead)
		secured.DELETE("/notifications/:id", noteH.Delete)

		secured.POST("/messages", msgH.Create)
		secured.GET("/messages", msgH.Inbox)
		secured.GET("/messages/:userId", msgH.Conversation)

		secured.POST("/reviews", reviewH.Create)
		secured.POST("/reports", reportH.Create)
		secured.POST("/api/ipfs/upload", fileH.Upload)
	}

	admin := r.Group("/api/admin", jwtAuth, AdminMiddleware(d.Market), limit)
	{
		adminH := NewAdmin(d.Market)
		admin.GET("/disputes", adminH.Disputes)
		admin.POST("/disputes/:id/resolve", adminH.ResolveDispute)
		admin.GET("/users", adminH.Users)
		admin.PATCH("/users/:id/role", adminH.SetRole)
		admin.GET("/stats", adminH.Stats)
		admin.GET("/reports", adminH.Reports)
		admin.PATCH("/reports/:id", adminH.UpdateReport)
	}
	return limiter
}

func health(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "chain": d.Market.ChainEnabled(), "storage": d.Store.Backend()}
		code := http.StatusOK
		if sqlDB, err := d.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status["status"], status["database"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
		if d.Redis != nil {
			if err := d.Redis.Ping(ctx).Err(); err != nil {
				status["status"], status["redis"] = "degraded", "unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	}
}
