package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartmail/internal/model"
)

// ListEmails handles GET /emails
func (h *Handler) ListEmails(c *gin.Context) {
	emails, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		h.fail(c, "list emails", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": summarize(emails)})
}

// ListClassified handles GET /classified-emails
func (h *Handler) ListClassified(c *gin.Context) {
	emails, err := h.store.GetClassified(c.Request.Context())
	if err != nil {
		h.fail(c, "list classified emails", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classified_emails": summarizeClassified(emails)})
}

// ListResponses handles GET /responded-emails
func (h *Handler) ListResponses(c *gin.Context) {
	responses, err := h.store.ListResponses(c.Request.Context())
	if err != nil {
		h.fail(c, "list responses", err)
		return
	}
	if responses == nil {
		responses = []model.ResponseRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"responded_emails": responses})
}
