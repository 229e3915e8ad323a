package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type fetchRequest struct {
	MaxEmailsToFetch *int `json:"max_emails_to_fetch"`
}

// Fetch handles POST /fetch
func (h *Handler) Fetch(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	max := h.opts.FetchLimit
	if req.MaxEmailsToFetch != nil {
		max = *req.MaxEmailsToFetch
	}
	if max < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_emails_to_fetch must not be negative"})
		return
	}

	res, err := h.ingest.Fetch(c.Request.Context(), max)
	if err != nil {
		h.fail(c, "fetch", err)
		return
	}
	c.JSON(http.StatusOK, fetchBody(res))
}

// Classify handles POST /classify?limit=N
func (h *Handler) Classify(c *gin.Context) {
	limit := h.opts.ClassifyLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	updated, err := h.classify.ClassifyBatch(c.Request.Context(), limit, h.opts.ClassifyDelay)
	if err != nil {
		h.fail(c, "classify", err)
		return
	}
	c.JSON(http.StatusOK, classifyBody(updated))
}
