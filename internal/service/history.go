package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"imagegen/internal/apperr"
	"imagegen/internal/logger"
	"imagegen/internal/model"
	"imagegen/internal/repository"
	"imagegen/internal/storage"
)

// HistoryItem is a history row with a freshly derived read URL.
type HistoryItem struct {
	model.GeneratedImage
	SignedURL string     `json:"signed_url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HistoryListResult is the service-level DTO for a page of history.
type HistoryListResult struct {
	Items []HistoryItem `json:"data"`
	Total int           `json:"total"`
}

// HistoryService records and serves a user's generation history.
type HistoryService interface {
	// Record appends a row for an already uploaded image.
	Record(ctx context.Context, userID, prompt, path string) (*model.GeneratedImage, error)

	// List returns the caller's rows newest first.
	List(ctx context.Context, caller model.Identity, limit, offset int) (*HistoryListResult, error)

	// Get returns one of the caller's rows.
	Get(ctx context.Context, caller model.Identity, id string) (*HistoryItem, error)

	// Delete removes the stored object and then the row.
	Delete(ctx context.Context, caller model.Identity, id string) error
}

type historyService struct {
	repo   repository.ImageRepository
	store  storage.Storage
	signer URLSigner
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// NewHistoryService constructs a HistoryService. ttl is the validity of URLs attached to items.
func NewHistoryService(repo repository.ImageRepository, store storage.Storage, signer URLSigner, ttl time.Duration, log *slog.Logger) HistoryService {
	return &historyService{
		repo:   repo,
		store:  store,
		signer: signer,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

func (s *historyService) Record(ctx context.Context, userID, prompt, path string) (*model.GeneratedImage, error) {
	img := &model.GeneratedImage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		ImagePath: path,
		CreatedAt: s.now().UTC(),
	}
	stored, err := s.repo.Create(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
	}
	return stored, nil
}

func (s *historyService) List(ctx context.Context, caller model.Identity, limit, offset int) (*HistoryListResult, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.ListByUser(ctx, caller.UserID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(res.Items))
	for _, img := range res.Items {
		items = append(items, s.withSignedURL(ctx, img))
	}
	return &HistoryListResult{Items: items, Total: res.Total}, nil
}

func (s *historyService) Get(ctx context.Context, caller model.Identity, id string) (*HistoryItem, error) {
	img, err := s.find(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	item := s.withSignedURL(ctx, *img)
	return &item, nil
}

func (s *historyService) Delete(ctx context.Context, caller model.Identity, id string) error {
	img, err := s.find(ctx, caller, id)
	if err != nil {
		return err
	}
	// Delete from storage first; if this fails, keep the row so the object stays reachable.
	if err := s.store.Delete(ctx, img.ImagePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete storage: %w", err)
	}
	return s.repo.Delete(ctx, caller.UserID, id)
}

func (s *historyService) find(ctx context.Context, caller model.Identity, id string) (*model.GeneratedImage, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	if id == "" {
		return nil, apperr.ErrNotFound
	}
	img, err := s.repo.FindByID(ctx, caller.UserID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return img, nil
}

func (s *historyService) withSignedURL(ctx context.Context, img model.GeneratedImage) HistoryItem {
	item := HistoryItem{GeneratedImage: img}
	signed, err := s.signer.Sign(ctx, img.ImagePath, s.ttl)
	if err != nil {
		s.log.Warn("history item not signed",
			slog.String("image_id", img.ID),
			slog.String("path", img.ImagePath),
			logger.Err(err),
		)
		return item
	}
	item.SignedURL = signed.URL
	item.ExpiresAt = &signed.ExpiresAt
	return item
}
