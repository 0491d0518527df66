package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parking-spot-backend/internal/model"
)

type spotResponse struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

type releaseResponse struct {
	ID        uuid.UUID  `json:"id"`
	SpotID    int64      `json:"spot_id"`
	Date      model.Date `json:"date"`
	Status    string     `json:"status"`
	TakenBy   *uuid.UUID `json:"taken_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type requestResponse struct {
	ID          uuid.UUID  `json:"id"`
	Date        model.Date `json:"date"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func newReleaseResponse(r *model.Release) releaseResponse {
	return releaseResponse{ID: r.ID, SpotID: r.SpotID, Date: r.Date, Status: string(r.Status), TakenBy: r.TakenBy, CreatedAt: r.CreatedAt}
}

func newRequestResponse(r *model.Request) requestResponse {
	return requestResponse{ID: r.ID, Date: r.Date, Status: string(r.Status), CreatedAt: r.CreatedAt, ProcessedAt: r.ProcessedAt}
}

// ListSpots handles GET /api/spots. Only spots in use are listed.
func (h *Handler) ListSpots(c *gin.Context) {
	spots, err := h.store.ListSpots(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response := make([]spotResponse, 0, len(spots))
	for _, s := range spots {
		if s.Active {
			response = append(response, spotResponse{ID: s.ID, Label: s.Label})
		}
	}
	c.JSON(http.StatusOK, response)
}

// ListMyReleases handles GET /api/me/releases.
func (h *Handler) ListMyReleases(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	releases, err := h.store.ListUserReleases(c.Request.Context(), userID, h.alloc.Today())
	if err != nil {
		writeError(c, err)
		return
	}

	response := make([]releaseResponse, 0, len(releases))
	for i := range releases {
		if releases[i].Status.Active() {
			response = append(response, newReleaseResponse(&releases[i]))
		}
	}
	c.JSON(http.StatusOK, response)
}

// ListMyRequests handles GET /api/me/requests.
func (h *Handler) ListMyRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requests, err := h.store.ListUserRequests(c.Request.Context(), userID, h.alloc.Today())
	if err != nil {
		writeError(c, err)
		return
	}

	response := make([]requestResponse, 0, len(requests))
	for i := range requests {
		if requests[i].Status.Active() {
			response = append(response, newRequestResponse(&requests[i]))
		}
	}
	c.JSON(http.StatusOK, response)
}
