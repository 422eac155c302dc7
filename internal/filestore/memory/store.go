// Package memory provides an in-process implementation of filestore.Store.
//
// It emulates S3 list semantics (prefix, delimiter, marker, max-keys) over a
// sorted key space, which makes it suitable for tests and local demos.
//
// Usage:
//
//	store := memory.New("media")
//	_ = store.PutObject(ctx, "media", "docs/a.txt", strings.NewReader("hi"), 2, filestore.PutOptions{})
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	acl         filestore.ACL
	modified    time.Time
}

// Store is an in-memory filestore.Store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*object
	now     func() time.Time
}

var _ filestore.Store = (*Store)(nil)

// New returns an empty store holding the given buckets.
func New(buckets ...string) *Store {
	s := &Store{
		buckets: make(map[string]map[string]*object, len(buckets)),
		now:     time.Now,
	}
	for _, b := range buckets {
		s.buckets[b] = make(map[string]*object)
	}
	return s
}

// SetClock replaces the time source used for LastModified.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateBucket adds an empty bucket; existing buckets are left untouched.
func (s *Store) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = make(map[string]*object)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctxErr(ctx)
}

func (s *Store) Close() error {
	return nil
}

// ListPage returns one page of a delimiter listing. When the previous page
// ended on a common prefix, every key under that prefix is skipped. A marker
// that is an object key, placeholders like "d/" included, only skips itself.
func (s *Store) ListPage(ctx context.Context, bucket string, req filestore.PageRequest) (*filestore.Page, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	maxKeys := req.MaxKeys
	if maxKeys <= 0 || maxKeys > filestore.MaxPageSize {
		maxKeys = filestore.MaxPageSize
	}

	keys := make([]string, 0, len(objects))
	for k := range objects {
		if strings.HasPrefix(k, req.Prefix) && k > req.Marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// a marker that is itself a common prefix resumes after that whole prefix
	rolled := ""
	if p := commonPrefix(req.Marker, req.Prefix, req.Delimiter); p == req.Marker {
		rolled = p
	}

	page := &filestore.Page{}
	count := 0
	last := ""
	truncated := false

	for _, key := range keys {
		if rolled != "" && strings.HasPrefix(key, rolled) {
			continue
		}

		prefix := commonPrefix(key, req.Prefix, req.Delimiter)
		if prefix != "" && prefix == last {
			continue
		}

		if count == maxKeys {
			truncated = true
			break
		}

		if prefix != "" {
			page.Prefixes = append(page.Prefixes, prefix)
			last = prefix
		} else {
			page.Objects = append(page.Objects, info(key, objects[key]))
			last = key
		}
		count++
	}

	if truncated {
		page.NextMarker = last
	}
	return page, nil
}

func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts filestore.PutOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if key == "" {
		return errs.New(errs.ErrKindInvalidInput, "object key is empty")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return errs.Wrap(errs.ErrKindBackendFailed, "failed to read upload body", err).WithPath(key)
	}
	if size >= 0 && int64(len(data)) != size {
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("body has %d bytes, expected %d", len(data), size)).WithPath(key)
	}

	meta := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		meta[k] = v
	}
	acl := opts.ACL
	if acl == "" {
		acl = filestore.ACLDefault
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	objects[key] = &object{
		data:        data,
		contentType: opts.ContentType,
		metadata:    meta,
		acl:         acl,
		modified:    s.now(),
	}
	return nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.object(bucket, key)
	if err != nil {
		return nil, err
	}
	return &reader{Reader: bytes.NewReader(o.data), info: info(key, o)}, nil
}

func (s *Store) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.object(bucket, key)
	if err != nil {
		return nil, err
	}
	stat := info(key, o)
	return &stat, nil
}

func (s *Store) CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.object(bucket, srcKey)
	if err != nil {
		return err
	}
	meta := make(map[string]string, len(src.metadata))
	for k, v := range src.metadata {
		meta[k] = v
	}
	s.buckets[bucket][dstKey] = &object{
		data:        append([]byte(nil), src.data...),
		contentType: src.contentType,
		metadata:    meta,
		acl:         src.acl,
		modified:    s.now(),
	}
	return nil
}

func (s *Store) RemoveObject(ctx context.Context, bucket, key string) error {
	return s.RemoveObjects(ctx, bucket, []string{key})
}

func (s *Store) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(objects, k)
	}
	return nil
}

func (s *Store) PutObjectACL(ctx context.Context, bucket, key string, acl filestore.ACL) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.object(bucket, key)
	if err != nil {
		return err
	}
	o.acl = acl
	return nil
}

func (s *Store) GetObjectACL(ctx context.Context, bucket, key string) (filestore.ACL, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.object(bucket, key)
	if err != nil {
		return "", err
	}
	return o.acl, nil
}

func (s *Store) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	stat, err := s.StatObject(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	expires := s.now().Add(ttl)
	s.mu.RUnlock()

	u := url.URL{
		Scheme:   "memory",
		Host:     bucket,
		Path:     "/" + stat.Key,
		RawQuery: url.Values{"expires": {expires.UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

// --- internal helpers ---

func (s *Store) bucket(name string) (map[string]*object, error) {
	objects, ok := s.buckets[name]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such bucket").WithPath(name)
	}
	return objects, nil
}

func (s *Store) object(bucket, key string) (*object, error) {
	objects, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	o, ok := objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key").WithPath(key)
	}
	return o, nil
}

func info(key string, o *object) filestore.ObjectInfo {
	meta := make(map[string]string, len(o.metadata))
	for k, v := range o.metadata {
		meta[k] = v
	}
	return filestore.ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		ETag:         fmt.Sprintf("%x", md5.Sum(o.data)),
		LastModified: o.modified,
		IsDir:        strings.HasSuffix(key, "/"),
		Metadata:     meta,
	}
}

// commonPrefix returns key cut after the first delimiter past prefix, or ""
// when key does not roll up under a common prefix.
func commonPrefix(key, prefix, delimiter string) string {
	if delimiter == "" || !strings.HasPrefix(key, prefix) {
		return ""
	}
	i := strings.Index(key[len(prefix):], delimiter)
	if i < 0 {
		return ""
	}
	return key[:len(prefix)+i+len(delimiter)]
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "operation cancelled", err)
	}
	return nil
}

// reader exposes an in-memory body as filestore.Object.
type reader struct {
	*bytes.Reader
	info filestore.ObjectInfo
}

func (r *reader) Close() error { return nil }

func (r *reader) Info() *filestore.ObjectInfo { return &r.info }
