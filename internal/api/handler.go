package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartmail/internal/model"
	"smartmail/internal/repository"
	"smartmail/internal/service/ingest"
	"smartmail/internal/service/respond"
	"smartmail/pkg/logger"
	"smartmail/pkg/util"
)

type Fetcher interface {
	Fetch(ctx context.Context, max int) (*ingest.Result, error)
}

type Classifier interface {
	ClassifyBatch(ctx context.Context, limit int, delay time.Duration) ([]model.EmailRecord, error)
}

type Responder interface {
	GenerateResponse(ctx context.Context, req respond.Request) (*respond.Result, error)
}

// Reader is the read side of the store the list endpoints need.
type Reader interface {
	GetAll(ctx context.Context) ([]model.EmailRecord, error)
	GetClassified(ctx context.Context) ([]model.EmailRecord, error)
	ListResponses(ctx context.Context) ([]model.ResponseRecord, error)
}

type Options struct {
	FetchLimit    int
	ClassifyLimit int
	ClassifyDelay time.Duration
}

type Handler struct {
	ingest   Fetcher
	classify Classifier
	respond  Responder
	store    Reader
	opts     Options
	logger   *zap.Logger
}

var _ Reader = (repository.EmailStore)(nil)

func NewHandler(fetcher Fetcher, classifier Classifier, responder Responder, store Reader, opts Options, logger *zap.Logger) *Handler {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 10
	}
	if opts.ClassifyLimit <= 0 {
		opts.ClassifyLimit = 5
	}
	return &Handler{
		ingest:   fetcher,
		classify: classifier,
		respond:  responder,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
}

// Root handles GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Smart Email Assistant API is running"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, respond.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail 4xx 返回具体原因，5xx 只返回概要并记录日志
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	logger.WithTrace(c.Request.Context(), h.logger).Error(op+" failed",
		zap.String("error_type", util.ClassifyError(err)),
		zap.Error(err),
	)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": op + " failed"})
}
