package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagegen/internal/apperr"
	"imagegen/internal/model"
	"imagegen/internal/storage"
)

// maxSignedURLTTL is the longest expiry S3 presigning accepts.
const maxSignedURLTTL = 7 * 24 * time.Hour

// URLSigner mints time-limited read URLs for stored images.
type URLSigner interface {
	// Sign returns a URL granting read access to path for ttl. It has no side effects.
	Sign(ctx context.Context, path string, ttl time.Duration) (*model.SignedURL, error)
}

type urlSigner struct {
	store storage.Storage
	now   func() time.Time
}

// NewURLSigner constructs a URLSigner. A nil clock means time.Now.
func NewURLSigner(store storage.Storage, now func() time.Time) URLSigner {
	if now == nil {
		now = time.Now
	}
	return &urlSigner{store: store, now: now}
}

func (s *urlSigner) Sign(ctx context.Context, path string, ttl time.Duration) (*model.SignedURL, error) {
	if path == "" {
		return nil, apperr.ErrPathNotFound
	}
	if ttl <= 0 || ttl > maxSignedURLTTL {
		return nil, fmt.Errorf("%w: ttl %s out of range", apperr.ErrSigningFailed, ttl)
	}

	if _, err := s.store.Stat(ctx, path); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrSigningFailed, err)
	}

	issued := s.now()
	u, err := s.store.PresignGet(ctx, path, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrSigningFailed, err)
	}
	return &model.SignedURL{
		URL:       u,
		Path:      path,
		ExpiresAt: issued.Add(ttl).UTC(),
	}, nil
}
