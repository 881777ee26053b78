package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/internal/ai"
	"github.com/brandon/onebox/internal/search"
	"github.com/brandon/onebox/pkg/types"
)

// Handlers carries the collaborators the HTTP surface reads and writes
// through. No business logic lives here beyond input validation and
// error-code mapping.
type Handlers struct {
	store        search.Store
	ai           *ai.Client
	contextStore *ai.ContextStore
	logger       *logrus.Logger
}

// NewHandlers creates the API handler set
func NewHandlers(store search.Store, client *ai.Client, contextStore *ai.ContextStore, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:        store,
		ai:           client,
		contextStore: contextStore,
		logger:       logger,
	}
}

// ListEmails handles GET /api/emails
func (h *Handlers) ListEmails(c *gin.Context) {
	filters := types.SearchFilters{
		Query:     c.Query("q"),
		AccountID: c.Query("account_id"),
		Folder:    c.Query("folder"),
		Category:  c.Query("category"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	}

	if filters.Category != "" && !types.ValidCategory(filters.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	var err error
	if filters.Page, err = queryInt(c, "page", 1); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	if filters.Size, err = queryInt(c, "size", 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	if filters.StartDate, err = queryTime(c, "start_date"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	if filters.EndDate, err = queryTime(c, "end_date"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}

	result, err := h.store.Search(c.Request.Context(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Email search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEmail handles GET /api/emails/:id
func (h *Handlers) GetEmail(c *gin.Context) {
	email, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, search.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, email)
}

// UpdateCategory handles PUT /api/emails/:id/category
func (h *Handlers) UpdateCategory(c *gin.Context) {
	var req struct {
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !types.ValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	id := c.Param("id")
	err := h.store.UpdateCategory(c.Request.Context(), id, types.Category(req.Category))
	if errors.Is(err, search.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to update category")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "category": req.Category})
}

// CategoryCounts handles GET /api/stats/categories
func (h *Handlers) CategoryCounts(c *gin.Context) {
	counts, err := h.store.CountsByCategory(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count categories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	c.JSON(http.StatusOK, counts)
}

// SuggestReply handles POST /api/emails/:id/suggest-reply
func (h *Handlers) SuggestReply(c *gin.Context) {
	ctx := c.Request.Context()

	email, err := h.store.GetByID(ctx, c.Param("id"))
	if errors.Is(err, search.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	query := email.Headers.Subject + " " + email.Body.Text
	contextText := h.contextStore.Retrieve(ctx, query)
	reply := h.ai.GenerateReply(ctx, email, contextText)

	c.JSON(http.StatusOK, gin.H{"id": email.ID, "reply": reply})
}

// ListProductInfo handles GET /api/product-info
func (h *Handlers) ListProductInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.contextStore.List())
}

// AddProductInfo handles POST /api/product-info
func (h *Handlers) AddProductInfo(c *gin.Context) {
	var req struct {
		ID      string `json:"id" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.contextStore.Add(c.Request.Context(), req.ID, req.Content); err != nil {
		h.logger.WithError(err).Error("Failed to add product info")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

// Healthz handles GET /healthz
func (h *Handlers) Healthz(c *gin.Context) {
	if err := h.store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	value := c.Query(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	value := c.Query(key)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
