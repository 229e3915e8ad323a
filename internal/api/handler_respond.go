package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartmail/internal/service/respond"
)

type respondRequest struct {
	EmailID string  `json:"email_id" binding:"required"`
	Draft   *string `json:"draft"`
	Send    *bool   `json:"send"`
}

// Respond handles POST /respond. Send defaults to true.
func (h *Handler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	send := true
	if req.Send != nil {
		send = *req.Send
	}

	res, err := h.respond.GenerateResponse(c.Request.Context(), respond.Request{
		EmailID:    req.EmailID,
		HumanInput: req.Draft,
		Send:       send,
	})
	if err != nil {
		h.fail(c, "respond", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type allRequest struct {
	FetchLimit     *int    `json:"fetch_limit"`
	RespondEmailID string  `json:"respond_email_id"`
	HumanInput     *string `json:"human_input"`
}

// All handles POST /all: fetch, classify, then optionally respond.
func (h *Handler) All(c *gin.Context) {
	var req allRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	limit := h.opts.FetchLimit
	if req.FetchLimit != nil && *req.FetchLimit >= 0 {
		limit = *req.FetchLimit
	}
	ctx := c.Request.Context()

	fetched, err := h.ingest.Fetch(ctx, limit)
	if err != nil {
		h.fail(c, "fetch", err)
		return
	}
	classified, err := h.classify.ClassifyBatch(ctx, limit, h.opts.ClassifyDelay)
	if err != nil {
		h.fail(c, "classify", err)
		return
	}

	var responseResult *respond.Result
	responseStatus := "No email ID provided for response"
	if req.RespondEmailID != "" {
		responseResult, err = h.respond.GenerateResponse(ctx, respond.Request{
			EmailID:    req.RespondEmailID,
			HumanInput: req.HumanInput,
			Send:       true,
		})
		switch {
		case err == nil:
			responseStatus = "Response sent"
		case statusFor(err) < http.StatusInternalServerError:
			responseStatus = "Error: " + err.Error()
		default:
			h.fail(c, "respond", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"fetch_result":          fetchBody(fetched),
		"classification_result": classifyBody(classified),
		"response_status":       responseStatus,
		"response_result":       responseResult,
	})
}
