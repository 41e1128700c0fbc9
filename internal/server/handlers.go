package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"github.com/dphuang2/browser-record-app/pkg/chunk"
	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/filter"
	"github.com/dphuang2/browser-record-app/pkg/recording"
	"github.com/dphuang2/browser-record-app/pkg/replay"
)

// SessionHandlers serves the session recording API.
type SessionHandlers struct {
	chunks      chunk.Store
	customers   customer.Store
	coordinator *replay.Coordinator
	logger      *slog.Logger
}

// uploadRequest is one chunk of recorded events posted by the storefront
// script, with the running cart state at upload time.
type uploadRequest struct {
	Shop      string            `json:"shop" binding:"required"`
	SessionID string            `json:"id" binding:"required"`
	Timestamp int64             `json:"timestamp" binding:"required"`
	Events    []recording.Event `json:"events" binding:"required"`

	LastTotalCartPrice *int64 `json:"lastTotalCartPrice"`
	LastItemCount      *int   `json:"lastItemCount"`
	Region             string `json:"region"`
	Country            string `json:"country"`
}

// Upload stores one chunk and marks the session's metadata stale.
func (h *SessionHandlers) Upload(c *gin.Context) {
	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID)

	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Info("rejecting malformed chunk upload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ua := useragent.New(c.Request.UserAgent())
	browser, _ := ua.Browser()
	device := filter.DeviceDesktop
	if ua.Mobile() {
		device = filter.DeviceMobile
	}

	record := &customer.Customer{
		Shop:               req.Shop,
		SessionID:          req.SessionID,
		Browser:            browser,
		OS:                 ua.OSInfo().Name,
		Device:             device,
		Region:             req.Region,
		Country:            req.Country,
		LocationAvailable:  req.Region != "" || req.Country != "",
		LastTotalCartPrice: req.LastTotalCartPrice,
		LastItemCount:      req.LastItemCount,
	}
	if err := h.customers.MarkStale(c.Request.Context(), record); err != nil {
		logger.Error("marking session stale failed",
			"shop", req.Shop, "session", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ch := &chunk.Chunk{
		Shop:      req.Shop,
		SessionID: req.SessionID,
		Timestamp: req.Timestamp,
		Events:    req.Events,
	}
	if err := h.chunks.PutChunk(c.Request.Context(), ch); err != nil {
		logger.Error("storing chunk failed",
			"shop", req.Shop, "session", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// List returns the shop's replays matching the filters query parameter.
func (h *SessionHandlers) List(c *gin.Context) {
	shop := c.Param("shop")

	spec, err := filter.Parse([]byte(c.Query("filters")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.coordinator.ListReplays(c.Request.Context(), shop, spec)
	if err != nil {
		h.logger.Error("listing replays failed", "shop", shop, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if listing == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// CustomerReplay returns one session's signed replay URL.
func (h *SessionHandlers) CustomerReplay(c *gin.Context) {
	shop := c.Param("shop")
	sessionID := c.Param("sessionId")

	url, err := h.coordinator.CustomerReplay(c.Request.Context(), shop, sessionID)
	if err != nil {
		h.logger.Error("fetching customer replay failed",
			"shop", shop, "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if url == "" {
		c.Status(http.StatusNoContent)
		return
	}
	c.String(http.StatusOK, url)
}
