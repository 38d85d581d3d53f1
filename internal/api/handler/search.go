package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/textrun/internal/service"
)

// SearchHandler handles run indexing and semantic search.
type SearchHandler struct {
	index *service.IndexService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - index: index service instance; may be disabled.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(index *service.IndexService) *SearchHandler {
	return &SearchHandler{index: index}
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	h.search(c, &req)
}

// SearchGet handles GET /api/v1/search?q=...&source_id=...&top_k=...
func (h *SearchHandler) SearchGet(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}
	h.search(c, &req)
}

func (h *SearchHandler) search(c *gin.Context, req *service.SearchRequest) {
	result, err := h.index.Search(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// IndexRuns handles POST /api/v1/jobs/:source_id/index.
func (h *SearchHandler) IndexRuns(c *gin.Context) {
	stats, err := h.index.IndexRuns(c.Request.Context(), c.Param("source_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
