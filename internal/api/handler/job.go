package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/textrun/internal/export"
	"github.com/timmy/textrun/internal/service"
)

// JobHandler exposes the extraction control surface.
type JobHandler struct {
	extraction *service.ExtractionService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - extraction: extraction service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(extraction *service.ExtractionService) *JobHandler {
	return &JobHandler{extraction: extraction}
}

// Start handles POST /api/v1/jobs.
func (h *JobHandler) Start(c *gin.Context) {
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	resp, err := h.extraction.Start(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Pause handles POST /api/v1/jobs/pause.
func (h *JobHandler) Pause(c *gin.Context) {
	h.control(c, h.extraction.Pause)
}

// Resume handles POST /api/v1/jobs/resume.
func (h *JobHandler) Resume(c *gin.Context) {
	h.control(c, h.extraction.Resume)
}

// Cancel handles POST /api/v1/jobs/cancel.
func (h *JobHandler) Cancel(c *gin.Context) {
	h.control(c, h.extraction.Cancel)
}

func (h *JobHandler) control(c *gin.Context, op func(ctx context.Context) (*service.JobState, error)) {
	state, err := op(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Progress handles GET /api/v1/jobs/progress?since_frame=N for the current job,
// and GET /api/v1/jobs/:source_id for a specific one.
func (h *JobHandler) Progress(c *gin.Context) {
	var since *int64
	if raw := c.Query("since_frame"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since_frame must be an integer"})
			return
		}
		since = &v
	}

	resp, err := h.extraction.GetProgress(c.Request.Context(), c.Param("source_id"), since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.extraction.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}

// EditRunRequest is a partial run edit; omitted fields are left unchanged. An empty text reverts
// the run to its detected text.
type EditRunRequest struct {
	Text    *string `json:"text"`
	Deleted *bool   `json:"deleted"`
}

// EditRun handles PATCH /api/v1/jobs/:source_id/runs/:frame_label.
func (h *JobHandler) EditRun(c *gin.Context) {
	var req EditRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	run, err := h.extraction.EditRun(c.Request.Context(), c.Param("source_id"), c.Param("frame_label"), req.Text, req.Deleted)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Export handles GET /api/v1/jobs/:source_id/export?format=json|csv|srt&current_only=true.
func (h *JobHandler) Export(c *gin.Context) {
	currentOnly, ok := currentOnlyQuery(c)
	if !ok {
		return
	}
	res, err := h.extraction.Export(c.Request.Context(), c.Param("source_id"), currentOnly)
	if err != nil {
		writeError(c, err)
		return
	}

	switch format := strings.ToLower(c.DefaultQuery("format", "json")); format {
	case "json":
		c.JSON(http.StatusOK, res)
	case "csv", "srt":
		var buf bytes.Buffer
		contentType := "text/csv; charset=utf-8"
		if format == "csv" {
			err = export.WriteCSV(&buf, res.Records)
		} else {
			contentType = "application/x-subrip; charset=utf-8"
			err = export.WriteSRT(&buf, res.Records)
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+res.SourceID+"."+format+`"`)
		c.Data(http.StatusOK, contentType, buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of json, csv, srt"})
	}
}

// Publish handles POST /api/v1/jobs/:source_id/publish.
func (h *JobHandler) Publish(c *gin.Context) {
	currentOnly, ok := currentOnlyQuery(c)
	if !ok {
		return
	}
	res, err := h.extraction.Publish(c.Request.Context(), c.Param("source_id"), currentOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// currentOnlyQuery parses the current_only flag and answers 400 when it is not a boolean.
func currentOnlyQuery(c *gin.Context) (bool, bool) {
	v, err := strconv.ParseBool(c.DefaultQuery("current_only", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_only must be a boolean"})
		return false, false
	}
	return v, true
}
