package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-spot-backend/config"
	"parking-spot-backend/internal/mw"
	"parking-spot-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, s store.Store, alloc Allocator, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, alloc, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Spots change only on restart, so they are cached for the configured TTL.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	// Public
	r.GET("/api/vapid_public_key", rateLimiter, handler.GetVAPIDPublicKey)

	api := r.Group("/api")
	api.Use(mw.Auth(cfg.JWTSecret), rateLimiter)
	{
		api.GET("/spots", caching, handler.ListSpots)
		api.GET("/me/releases", handler.ListMyReleases)
		api.GET("/me/requests", handler.ListMyRequests)

		api.POST("/releases", handler.CreateRelease)
		api.DELETE("/releases/:id", handler.DeleteRelease)
		api.POST("/requests", handler.CreateRequest)
		api.DELETE("/requests/:id", handler.DeleteRequest)

		api.POST("/holds/spot/confirm", handler.ConfirmSpot)
		api.POST("/holds/spot/cancel", handler.CancelSpot)
		api.POST("/holds/reminder/confirm", handler.ConfirmReminder)
		api.POST("/holds/reminder/cancel", handler.CancelReminder)

		api.POST("/distribution", handler.RunDistribution)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
