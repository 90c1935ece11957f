package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"imagegen/internal/apperr"
	"imagegen/internal/model"
	"imagegen/internal/storage"
)

const (
	defaultContentType = "image/png"
	imageCacheControl  = "max-age=3600"
)

// SecureCopyService re-hosts a publicly reachable image inside the private bucket.
type SecureCopyService interface {
	// Copy fetches imageURL and writes it to {callerId}/{uuid}.png. It never overwrites an object.
	Copy(ctx context.Context, caller model.Identity, imageURL string) (*model.StoredImage, error)
}

// CopyOptions bound the fetch and upload steps. Zero values disable the respective bound.
type CopyOptions struct {
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	MaxBytes      int64
}

type secureCopyService struct {
	store storage.Storage
	http  *http.Client
	opts  CopyOptions
	newID func() string
	now   func() time.Time
}

// NewSecureCopyService constructs a SecureCopyService.
func NewSecureCopyService(store storage.Storage, httpClient *http.Client, opts CopyOptions) SecureCopyService {
	return &secureCopyService{
		store: store,
		http:  httpClient,
		opts:  opts,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

func (s *secureCopyService) Copy(ctx context.Context, caller model.Identity, imageURL string) (*model.StoredImage, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	src, err := parseSourceURL(imageURL)
	if err != nil {
		return nil, err
	}

	data, contentType, err := s.fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	// The name never derives from caller input, so traversal and overwrite are impossible.
	key := caller.UserID + "/" + s.newID() + ".png"

	upCtx := ctx
	if s.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		upCtx, cancel = context.WithTimeout(ctx, s.opts.UploadTimeout)
		defer cancel()
	}

	info, err := s.store.Put(upCtx, key, bytes.NewReader(data), storage.PutObjectOptions{
		Size:         int64(len(data)),
		ContentType:  contentType,
		CacheControl: imageCacheControl,
		Metadata:     map[string]string{"owner": caller.UserID},
		NoOverwrite:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrUploadFailed, err)
	}

	return &model.StoredImage{
		Path:        key,
		Size:        info.Size,
		ContentType: contentType,
		CreatedAt:   s.now().UTC(),
	}, nil
}

func (s *secureCopyService) fetch(ctx context.Context, src *url.URL) ([]byte, string, error) {
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrInvalidURL, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrSourceFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: status %d", apperr.ErrSourceFetchFailed, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if s.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, s.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", apperr.ErrSourceFetchFailed, err)
	}
	if s.opts.MaxBytes > 0 && int64(len(data)) > s.opts.MaxBytes {
		return nil, "", fmt.Errorf("%w: payload exceeds %d bytes", apperr.ErrSourceFetchFailed, s.opts.MaxBytes)
	}
	if len(data) == 0 {
		return nil, "", apperr.ErrEmptySource
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = defaultContentType
	}
	return data, contentType, nil
}

func parseSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", apperr.ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidURL, raw)
	}
	return u, nil
}
