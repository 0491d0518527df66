package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/mw"
	"parking-spot-backend/internal/store"
)

// Allocator is the part of the allocation engine the HTTP layer drives.
type Allocator interface {
	Today() model.Date
	ReleaseSpot(ctx context.Context, ownerID uuid.UUID, spotID int64, date model.Date) (*model.Release, error)
	RequestSpot(ctx context.Context, userID uuid.UUID, date model.Date) (*model.Request, error)
	RevokeRelease(ctx context.Context, releaseID, actingUser uuid.UUID) error
	RevokeRequest(ctx context.Context, requestID, actingUser uuid.UUID) error
	ConfirmSpot(ctx context.Context, userID uuid.UUID) error
	CancelSpot(ctx context.Context, userID uuid.UUID) error
	ConfirmReminder(ctx context.Context, userID uuid.UUID) error
	CancelReminder(ctx context.Context, userID uuid.UUID) error
	RunDistribution(ctx context.Context) (int, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	alloc   Allocator
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, alloc Allocator, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		alloc:   alloc,
		webpush: webpushOptions,
	}
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := mw.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return id, ok
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the error taxonomy onto status codes.
func writeError(c *gin.Context, err error) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		conflict   *apperr.ConflictError
		persist    *apperr.PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		body := gin.H{"error": conflict.Error()}
		if conflict.Current != "" {
			body["current"] = conflict.Current
		}
		c.AbortWithStatusJSON(http.StatusConflict, body)
	case errors.As(err, &persist):
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage is unavailable, try again"})
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
