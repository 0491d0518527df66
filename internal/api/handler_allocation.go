package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parking-spot-backend/internal/parse"
)

type releaseRequest struct {
	Spot string `json:"spot" binding:"required"`
	Date string `json:"date" binding:"required"`
}

type spotRequest struct {
	Date string `json:"date" binding:"required"`
}

// CreateRelease handles POST /api/releases.
func (h *Handler) CreateRelease(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	spotID, err := parse.SpotNumber(req.Spot)
	if err != nil {
		writeError(c, err)
		return
	}
	date, err := parse.Date(req.Date, h.alloc.Today())
	if err != nil {
		writeError(c, err)
		return
	}

	rel, err := h.alloc.ReleaseSpot(c.Request.Context(), userID, spotID, date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newReleaseResponse(rel))
}

// DeleteRelease handles DELETE /api/releases/:id.
func (h *Handler) DeleteRelease(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.alloc.RevokeRelease(c.Request.Context(), id, userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateRequest handles POST /api/requests.
func (h *Handler) CreateRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req spotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parse.Date(req.Date, h.alloc.Today())
	if err != nil {
		writeError(c, err)
		return
	}

	created, err := h.alloc.RequestSpot(c.Request.Context(), userID, date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRequestResponse(created))
}

// DeleteRequest handles DELETE /api/requests/:id.
func (h *Handler) DeleteRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.alloc.RevokeRequest(c.Request.Context(), id, userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// holdAction runs one of the confirm/cancel operations for the caller.
func holdAction(c *gin.Context, op func(context.Context, uuid.UUID) error) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConfirmSpot handles POST /api/holds/spot/confirm.
func (h *Handler) ConfirmSpot(c *gin.Context) { holdAction(c, h.alloc.ConfirmSpot) }

// CancelSpot handles POST /api/holds/spot/cancel.
func (h *Handler) CancelSpot(c *gin.Context) { holdAction(c, h.alloc.CancelSpot) }

// ConfirmReminder handles POST /api/holds/reminder/confirm.
func (h *Handler) ConfirmReminder(c *gin.Context) { holdAction(c, h.alloc.ConfirmReminder) }

// CancelReminder handles POST /api/holds/reminder/cancel.
func (h *Handler) CancelReminder(c *gin.Context) { holdAction(c, h.alloc.CancelReminder) }

// RunDistribution handles POST /api/distribution.
func (h *Handler) RunDistribution(c *gin.Context) {
	n, err := h.alloc.RunDistribution(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"awarded": n})
}
