// Package storagetest provides an in-memory storage.Storage whose presigned URLs can be resolved
// against a controllable clock.
package storagetest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"imagegen/internal/storage"
)

var (
	ErrBadSignature = errors.New("signature mismatch")
	ErrURLExpired   = errors.New("signed url expired")
)

type object struct {
	data []byte
	info storage.ObjectInfo
}

// Store keeps objects in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
	puts    int
	secret  []byte
	now     func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New returns an empty store using the wall clock.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		secret:  []byte("storagetest"),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for signing and resolving.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Puts reports how many objects were written successfully.
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Keys lists stored keys in no particular order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok && opt.NoOverwrite {
		return storage.ObjectInfo{}, storage.ErrObjectExists
	}
	info := storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opt.ContentType,
		LastModified: s.now(),
		Metadata:     opt.Metadata,
	}
	s.objects[key] = object{data: data, info: info}
	s.puts++
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return obj.info, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// PresignGet returns mem://bucket/<key>?expires=<unix>&sig=<hmac>.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		return "", fmt.Errorf("invalid expiry %s", expiry)
	}
	s.mu.Lock()
	exp := s.now().Add(expiry).Unix()
	s.mu.Unlock()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(key, exp))
	u := url.URL{Scheme: "mem", Host: "bucket", Path: "/" + key, RawQuery: q.Encode()}
	return u.String(), nil
}

// Resolve returns the bytes a signed URL grants access to, as seen at the store's current time.
func (s *Store) Resolve(raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	key := u.Path[1:]
	exp, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(u.Query().Get("sig")), []byte(s.sign(key, exp))) {
		return nil, ErrBadSignature
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().Unix() >= exp {
		return nil, ErrURLExpired
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return obj.data, nil
}

func (s *Store) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
