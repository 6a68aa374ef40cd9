package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"trade-market/internal/apperrors"
	"trade-market/internal/attachments"
	"trade-market/internal/models"
	"trade-market/internal/observability"
	"trade-market/internal/repositories"
	"trade-market/internal/telemetry"
)

const searchLimit = 50

// BlobStore is satisfied by attachments.DiskStore.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (attachments.Stored, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TradeSearcher is satisfied by search.TradeIndex.
type TradeSearcher interface {
	Index(trade models.Trade) error
	Remove(tradeID int64) error
	Search(ctx context.Context, text string, limit int) ([]int64, error)
}

// NewTrade is the owner's input for a listing.
type NewTrade struct {
	Title       string
	Description string
	Images      []io.Reader
}

// TradeUpdate leaves nil fields untouched.
type TradeUpdate struct {
	Title          *string
	Description    *string
	Images         []io.Reader
	RemoveImageIDs []int64
}

// TradeFilter narrows List; the zero value lists every trade.
type TradeFilter struct {
	OwnerID int64
	Query   string
}

// TradeService manages trade listings and their images.
type TradeService struct {
	trades    repositories.TradeRepository
	users     *UserDirectory
	blobs     BlobStore
	index     TradeSearcher
	renderer  Renderer
	events    eventSink
	audit     Auditor
	maxImages int
	log       *slog.Logger
}

// NewTradeService builds a TradeService.
func NewTradeService(trades repositories.TradeRepository, users *UserDirectory, blobs BlobStore, index TradeSearcher, renderer Renderer, publisher EventPublisher, audit Auditor, maxImages int, log *slog.Logger) *TradeService {
	return &TradeService{
		trades:    trades,
		users:     users,
		blobs:     blobs,
		index:     index,
		renderer:  renderer,
		events:    eventSink{publisher: publisher, log: log},
		audit:     audit,
		maxImages: maxImages,
		log:       log,
	}
}

// Create stores the images, then the trade.
func (s *TradeService) Create(ctx context.Context, ownerID int64, in NewTrade) (models.TradeView, error) {
	input := tradeInput{OwnerID: ownerID, Title: strings.TrimSpace(in.Title), Description: in.Description}
	if err := validateStruct(input); err != nil {
		return models.TradeView{}, err
	}
	if err := s.checkImageCount(len(in.Images)); err != nil {
		return models.TradeView{}, err
	}

	images, err := s.storeImages(ctx, in.Images)
	if err != nil {
		return models.TradeView{}, err
	}

	trade, err := s.trades.CreateTrade(ctx, models.Trade{
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		Images:      images,
	})
	if err != nil {
		s.deleteBlobs(ctx, images)
		return models.TradeView{}, fmt.Errorf("create trade: %w", err)
	}

	s.reindex(trade)
	observability.IncTradeOp("create")
	s.events.emit(ctx, RoutingTradeCreated, "trades", models.TradeEvent{TradeID: trade.ID, OwnerID: ownerID})
	s.emitAudit(ctx, "trade.create", trade.ID, ownerID, telemetry.OutcomeAllowed, "")
	return s.view(ctx, trade)
}

// Get returns one trade.
func (s *TradeService) Get(ctx context.Context, tradeID int64) (models.TradeView, error) {
	trade, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return models.TradeView{}, err
	}
	return s.view(ctx, trade)
}

// List returns trades newest first, or by relevance when a query is given.
func (s *TradeService) List(ctx context.Context, filter TradeFilter) ([]models.TradeView, error) {
	query := strings.TrimSpace(filter.Query)
	if query == "" {
		trades, err := s.trades.ListTrades(ctx, filter.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("list trades: %w", err)
		}
		return s.views(ctx, trades)
	}

	ids, err := s.index.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search trades: %w", err)
	}
	found, err := s.trades.GetTrades(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	byID := lo.KeyBy(found, func(t models.Trade) int64 { return t.ID })
	ranked := lo.FilterMap(ids, func(id int64, _ int) (models.Trade, bool) {
		t, ok := byID[id]
		if !ok || (filter.OwnerID != 0 && t.OwnerID != filter.OwnerID) {
			return models.Trade{}, false
		}
		return t, true
	})
	return s.views(ctx, ranked)
}

// Update applies the owner's edit. Removed images lose their blobs once the edit is stored.
func (s *TradeService) Update(ctx context.Context, tradeID, actorID int64, in TradeUpdate) (models.TradeView, error) {
	current, err := s.ownedTrade(ctx, tradeID, actorID, "trade.update")
	if err != nil {
		return models.TradeView{}, err
	}

	input := tradeInput{OwnerID: current.OwnerID, Title: current.Title, Description: current.Description}
	if in.Title != nil {
		input.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		input.Description = *in.Description
	}
	if err := validateStruct(input); err != nil {
		return models.TradeView{}, err
	}

	owned := lo.SliceToMap(current.Images, func(img models.TradeImage) (int64, struct{}) { return img.ID, struct{}{} })
	removeIDs := lo.Uniq(in.RemoveImageIDs)
	if unknown, ok := lo.Find(removeIDs, func(id int64) bool { _, ok := owned[id]; return !ok }); ok {
		return models.TradeView{}, apperrors.NewValidationError("remove_image_ids", fmt.Sprintf("image %d does not belong to this trade", unknown))
	}
	if err := s.checkImageCount(len(current.Images) - len(removeIDs) + len(in.Images)); err != nil {
		return models.TradeView{}, err
	}

	added, err := s.storeImages(ctx, in.Images)
	if err != nil {
		return models.TradeView{}, err
	}

	updated, removed, err := s.trades.UpdateTrade(ctx, tradeID, repositories.TradeChanges{
		Title:          input.Title,
		Description:    input.Description,
		AddImages:      added,
		RemoveImageIDs: removeIDs,
		MaxImages:      s.maxImages,
	})
	if err != nil {
		s.deleteBlobs(ctx, added)
		return models.TradeView{}, fmt.Errorf("update trade: %w", err)
	}
	s.deleteBlobs(ctx, removed)

	s.reindex(updated)
	observability.IncTradeOp("update")
	s.events.emit(ctx, RoutingTradeUpdated, "trades", models.TradeEvent{TradeID: updated.ID, OwnerID: updated.OwnerID})
	s.emitAudit(ctx, "trade.update", updated.ID, actorID, telemetry.OutcomeAllowed,
		fmt.Sprintf("%d images added, %d removed", len(added), len(removed)))
	return s.view(ctx, updated)
}

// Delete removes the trade, its image rows, its blobs and its search document.
func (s *TradeService) Delete(ctx context.Context, tradeID, actorID int64) error {
	if _, err := s.ownedTrade(ctx, tradeID, actorID, "trade.delete"); err != nil {
		return err
	}

	images, err := s.trades.DeleteTrade(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	s.deleteBlobs(ctx, images)
	if err := s.index.Remove(tradeID); err != nil {
		s.log.Warn("search index remove failed", "trade_id", tradeID, "error", err)
	}

	observability.IncTradeOp("delete")
	s.events.emit(ctx, RoutingTradeDeleted, "trades", models.TradeEvent{TradeID: tradeID, OwnerID: actorID})
	s.emitAudit(ctx, "trade.delete", tradeID, actorID, telemetry.OutcomeAllowed, fmt.Sprintf("%d images removed", len(images)))
	return nil
}

// OpenImage streams one image of a trade. The caller closes the reader.
func (s *TradeService) OpenImage(ctx context.Context, tradeID, imageID int64) (io.ReadCloser, string, error) {
	trade, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, "", err
	}
	img, ok := lo.Find(trade.Images, func(img models.TradeImage) bool { return img.ID == imageID })
	if !ok {
		return nil, "", apperrors.NotFound("image", imageID)
	}
	rc, err := s.blobs.Open(ctx, img.StorageKey)
	if err != nil {
		return nil, "", err
	}
	return rc, img.ContentType, nil
}

func (s *TradeService) ownedTrade(ctx context.Context, tradeID, actorID int64, action string) (models.Trade, error) {
	trade, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return models.Trade{}, err
	}
	if trade.OwnerID != actorID {
		s.emitAudit(ctx, action, tradeID, actorID, telemetry.OutcomeDenied, "not the owner")
		return models.Trade{}, apperrors.Forbidden(action)
	}
	return trade, nil
}

func (s *TradeService) checkImageCount(n int) error {
	if s.maxImages > 0 && n > s.maxImages {
		return apperrors.NewValidationError("images", fmt.Sprintf("at most %d images per trade", s.maxImages))
	}
	return nil
}

// storeImages writes every upload or none of them.
func (s *TradeService) storeImages(ctx context.Context, uploads []io.Reader) ([]models.TradeImage, error) {
	images := make([]models.TradeImage, 0, len(uploads))
	for _, upload := range uploads {
		stored, err := s.blobs.Put(ctx, upload)
		if err != nil {
			s.deleteBlobs(ctx, images)
			switch {
			case errors.Is(err, attachments.ErrUnsupportedType):
				return nil, apperrors.NewValidationError("images", "must be a png, jpeg, gif or webp image")
			case errors.Is(err, attachments.ErrTooLarge):
				return nil, apperrors.NewValidationError("images", "is too large")
			}
			return nil, fmt.Errorf("store image: %w", err)
		}
		images = append(images, models.TradeImage{
			StorageKey:  stored.Key,
			ContentType: stored.ContentType,
			Size:        stored.Size,
		})
	}
	return images, nil
}

func (s *TradeService) deleteBlobs(ctx context.Context, images []models.TradeImage) {
	for _, img := range images {
		if err := s.blobs.Delete(ctx, img.StorageKey); err != nil {
			s.log.Warn("blob delete failed", "storage_key", img.StorageKey, "error", err)
		}
	}
}

func (s *TradeService) reindex(trade models.Trade) {
	if err := s.index.Index(trade); err != nil {
		s.log.Warn("search index update failed", "trade_id", trade.ID, "error", err)
	}
}

func (s *TradeService) emitAudit(ctx context.Context, action string, tradeID, actorID int64, outcome, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, telemetry.AuditRecord{
		Action:     action,
		Resource:   telemetry.ResourceTrade,
		ResourceID: tradeID,
		ActorID:    actorID,
		Outcome:    outcome,
		Detail:     detail,
	})
}

func (s *TradeService) view(ctx context.Context, trade models.Trade) (models.TradeView, error) {
	views, err := s.views(ctx, []models.Trade{trade})
	if err != nil {
		return models.TradeView{}, err
	}
	return views[0], nil
}

func (s *TradeService) views(ctx context.Context, trades []models.Trade) ([]models.TradeView, error) {
	owners, err := s.users.Lookup(ctx, lo.Map(trades, func(t models.Trade, _ int) int64 { return t.OwnerID }))
	if err != nil {
		return nil, err
	}
	return lo.Map(trades, func(t models.Trade, _ int) models.TradeView {
		if t.Images == nil {
			t.Images = []models.TradeImage{}
		}
		return models.TradeView{Trade: t, Owner: owners[t.OwnerID], DescriptionHTML: s.renderer.Render(t.Description)}
	}), nil
}
