package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/textrun/internal/pipeline"
)

// EventsHandler serves incremental reads of the progress event bus.
type EventsHandler struct {
	events *pipeline.EventBus
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(events *pipeline.EventBus) *EventsHandler {
	return &EventsHandler{events: events}
}

// List handles GET /api/v1/events?since=N. Clients pass back last_seq to poll for newer events.
func (h *EventsHandler) List(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":   h.events.Since(since),
		"last_seq": h.events.LastSeq(),
	})
}
