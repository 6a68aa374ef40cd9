package handlers

import (
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"trade-market/internal/models"
	"trade-market/internal/services"
)

// TradeService is implemented by services.TradeService.
type TradeService interface {
	Create(ctx context.Context, ownerID int64, in services.NewTrade) (models.TradeView, error)
	Get(ctx context.Context, tradeID int64) (models.TradeView, error)
	List(ctx context.Context, filter services.TradeFilter) ([]models.TradeView, error)
	Update(ctx context.Context, tradeID, actorID int64, in services.TradeUpdate) (models.TradeView, error)
	Delete(ctx context.Context, tradeID, actorID int64) error
	OpenImage(ctx context.Context, tradeID, imageID int64) (io.ReadCloser, string, error)
}

// TradeHandler manages trade listing endpoints.
type TradeHandler struct {
	trades TradeService
	log    *slog.Logger
}

// NewTradeHandler builds a TradeHandler.
func NewTradeHandler(trades TradeService, log *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, log: log}
}

// Register mounts the trade routes on an authenticated group.
func (h *TradeHandler) Register(r gin.IRoutes) {
	r.GET("/trades", h.ListTrades)
	r.POST("/trades", h.CreateTrade)
	r.GET("/trades/:trade_id", h.GetTrade)
	r.PUT("/trades/:trade_id", h.UpdateTrade)
	r.DELETE("/trades/:trade_id", h.DeleteTrade)
	r.GET("/trades/:trade_id/images/:image_id", h.GetImage)
}

// ListTrades lists trades, optionally by owner and full-text query.
func (h *TradeHandler) ListTrades(c *gin.Context) {
	var filter services.TradeFilter
	if raw := c.Query("owner_id"); raw != "" {
		ownerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ownerID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
			return
		}
		filter.OwnerID = ownerID
	}
	filter.Query = c.Query("q")

	trades, err := h.trades.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// CreateTrade accepts a multipart form with title, description and images,
// or a JSON body without images.
func (h *TradeHandler) CreateTrade(c *gin.Context) {
	var in services.NewTrade
	if c.ContentType() == gin.MIMEJSON {
		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Title, in.Description = req.Title, req.Description
	} else {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form"})
			return
		}
		files, err := openImages(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read images"})
			return
		}
		defer closeAll(files)
		in.Title = formValue(form, "title")
		in.Description = formValue(form, "description")
		in.Images = readers(files)
	}

	trade, err := h.trades.Create(c.Request.Context(), c.GetInt64("userID"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

// GetTrade returns a single trade.
func (h *TradeHandler) GetTrade(c *gin.Context) {
	tradeID, ok := parseID(c, "trade_id", "trade")
	if !ok {
		return
	}

	trade, err := h.trades.Get(c.Request.Context(), tradeID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// UpdateTrade applies the owner's multipart edit. Absent fields stay unchanged.
func (h *TradeHandler) UpdateTrade(c *gin.Context) {
	tradeID, ok := parseID(c, "trade_id", "trade")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form"})
		return
	}
	removeIDs, err := parseIDList(form.Value["remove_image_ids"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remove_image_ids"})
		return
	}
	files, err := openImages(form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read images"})
		return
	}
	defer closeAll(files)

	in := services.TradeUpdate{Images: readers(files), RemoveImageIDs: removeIDs}
	if vals, ok := form.Value["title"]; ok && len(vals) > 0 {
		in.Title = &vals[0]
	}
	if vals, ok := form.Value["description"]; ok && len(vals) > 0 {
		in.Description = &vals[0]
	}

	trade, err := h.trades.Update(c.Request.Context(), tradeID, c.GetInt64("userID"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// DeleteTrade removes the caller's trade with its images.
func (h *TradeHandler) DeleteTrade(c *gin.Context) {
	tradeID, ok := parseID(c, "trade_id", "trade")
	if !ok {
		return
	}

	if err := h.trades.Delete(c.Request.Context(), tradeID, c.GetInt64("userID")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetImage streams one stored image.
func (h *TradeHandler) GetImage(c *gin.Context) {
	tradeID, ok := parseID(c, "trade_id", "trade")
	if !ok {
		return
	}
	imageID, ok := parseID(c, "image_id", "image")
	if !ok {
		return
	}

	rc, contentType, err := h.trades.OpenImage(c.Request.Context(), tradeID, imageID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Cache-Control": "private, max-age=3600",
	})
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func openImages(form *multipart.Form) ([]multipart.File, error) {
	headers := append(append([]*multipart.FileHeader{}, form.File["images"]...), form.File["images[]"]...)
	files := make([]multipart.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(files)
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readers(files []multipart.File) []io.Reader {
	return lo.Map(files, func(f multipart.File, _ int) io.Reader { return f })
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// parseIDList accepts repeated fields and comma separated values.
func parseIDList(values []string) ([]int64, error) {
	ids := []int64{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
