// Package objectfs maps filesystem operations onto an object storage bucket.
//
// Directories are virtual: a directory exists when some key starts with its
// path plus "/". CreateDirectory writes a zero-byte placeholder object so an
// empty directory can exist too.
//
// Usage:
//
//	fs, err := objectfs.Open(ctx, cfg, log)
//	if err != nil { ... }
//	defer fs.Close()
//
//	entries, err := fs.ListContents(ctx, "docs", true)
package objectfs

import (
	"bytes"
	"context"
	"io"
	"mime"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
	"github.com/koustreak/objectfs/internal/lister"
	"github.com/koustreak/objectfs/internal/logger"
)

// sniffLen is how many leading bytes of a stream are used for MIME detection.
const sniffLen = 3072

// Visibility is the filesystem view of an object's ACL.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Attributes describes one file or directory. Only the fields the producing
// operation knows are set.
type Attributes struct {
	Type       lister.EntryType `json:"type"`
	Path       string           `json:"path"`
	Timestamp  int64            `json:"timestamp,omitempty"`
	Size       int64            `json:"size,omitempty"`
	Visibility Visibility       `json:"visibility,omitempty"`
	MimeType   string           `json:"mime_type,omitempty"`
}

// WriteOptions carries the optional settings of a write.
type WriteOptions struct {
	// ContentType overrides MIME detection.
	ContentType string

	// ContentMD5 is the base64 MD5 of the body, checked by the backend.
	// The S3 driver sends it as given. minio-go cannot take a precomputed
	// digest, so the minio driver computes and sends its own instead.
	ContentMD5 string

	// Headers are extra upload headers such as Cache-Control or x-amz-meta-*.
	Headers map[string]string

	// Visibility is applied at upload time when set.
	Visibility Visibility
}

// Adapter exposes filesystem operations over one bucket of a filestore.Store.
// It holds no mutable state and is safe for concurrent use.
type Adapter struct {
	store  filestore.Store
	bucket string
	lister *lister.Lister
	log    *logger.Logger
}

// New returns an Adapter over bucket. A nil log discards output.
func New(store filestore.Store, bucket string, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.Nop()
	}
	return &Adapter{
		store:  store,
		bucket: bucket,
		lister: lister.New(store, bucket, filestore.MaxPageSize),
		log:    log.With().Str("bucket", bucket).Logger(),
	}
}

// Bucket returns the bucket the adapter operates on.
func (a *Adapter) Bucket() string {
	return a.bucket
}

// Close releases the underlying store.
func (a *Adapter) Close() error {
	return a.store.Close()
}

// Write stores contents at path.
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, opts WriteOptions) error {
	put := putOptions(opts)
	if put.ContentType == "" {
		put.ContentType = detectContentType(path, contents)
	}

	err := a.store.PutObject(ctx, a.bucket, path, bytes.NewReader(contents), int64(len(contents)), put)
	return a.done("write", path, err, logger.Fields{"size": len(contents)})
}

// WriteStream stores everything read from r at path. r is not closed.
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, opts WriteOptions) error {
	if r == nil {
		return errs.New(errs.ErrKindInvalidInput, "contents is an invalid stream").WithPath(path)
	}

	put := putOptions(opts)
	if put.ContentType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return errs.Wrap(errs.ErrKindBackendFailed, "failed to read stream", err).WithPath(path)
		}
		head = head[:n]
		put.ContentType = detectContentType(path, head)
		r = io.MultiReader(bytes.NewReader(head), r)
	}

	err := a.store.PutObject(ctx, a.bucket, path, r, -1, put)
	return a.done("write stream", path, err)
}

// Read returns the full contents of path.
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	obj, err := a.store.GetObject(ctx, a.bucket, path)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindBackendFailed, "failed to read object", err).WithPath(path)
	}
	return data, nil
}

// ReadStream opens path for reading. The caller must close the result.
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := a.store.GetObject(ctx, a.bucket, path)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Move copies source to destination, then deletes source. A failed copy
// leaves source untouched.
func (a *Adapter) Move(ctx context.Context, source, destination string) error {
	if err := a.store.CopyObject(ctx, a.bucket, source, destination); err != nil {
		return a.done("move", source, err)
	}
	err := a.store.RemoveObject(ctx, a.bucket, source)
	return a.done("move", source, err, logger.Fields{"destination": destination})
}

// Copy duplicates source at destination.
func (a *Adapter) Copy(ctx context.Context, source, destination string) error {
	err := a.store.CopyObject(ctx, a.bucket, source, destination)
	return a.done("copy", source, err, logger.Fields{"destination": destination})
}

// Delete removes the object at path.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	return a.done("delete", path, a.store.RemoveObject(ctx, a.bucket, path))
}

// DeleteDirectory removes every object under path, its placeholder included.
// A directory with nothing listed under it only loses its placeholder.
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	placeholder := lister.Normalize(path) + "/"

	entries, err := a.lister.List(ctx, path, true)
	if err != nil {
		return a.done("delete directory", path, err)
	}
	if len(entries) == 0 {
		err = a.store.RemoveObject(ctx, a.bucket, placeholder)
		return a.done("delete directory", path, err, logger.Fields{"objects": 0})
	}

	keys := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		keys = append(keys, e.Path)
	}
	keys = append(keys, placeholder)

	err = a.store.RemoveObjects(ctx, a.bucket, keys)
	return a.done("delete directory", path, err, logger.Fields{"objects": len(keys)})
}

// CreateDirectory writes the zero-byte placeholder for path.
func (a *Adapter) CreateDirectory(ctx context.Context, path string) error {
	key := lister.Normalize(path) + "/"
	err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(nil), 0, filestore.PutOptions{})
	return a.done("create directory", key, err)
}

// SetVisibility makes path public-read for VisibilityPublic and private
// for anything else.
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility Visibility) error {
	err := a.store.PutObjectACL(ctx, a.bucket, path, aclFor(visibility))
	return a.done("set visibility", path, err, logger.Fields{"visibility": string(visibility)})
}

// Visibility reports whether path is publicly readable.
func (a *Adapter) Visibility(ctx context.Context, path string) (*Attributes, error) {
	acl, err := a.store.GetObjectACL(ctx, a.bucket, path)
	if err != nil {
		return nil, err
	}
	return &Attributes{Type: lister.TypeFile, Path: path, Visibility: visibilityOf(acl)}, nil
}

// FileExists reports whether an object is stored at exactly path.
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := a.store.StatObject(ctx, a.bucket, path)
	if errs.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DirectoryExists reports whether anything is listed under path or its
// placeholder object is stored.
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	entries, err := a.lister.First(ctx, path)
	if err != nil {
		return false, err
	}
	if len(entries) > 0 {
		return true, nil
	}
	return a.FileExists(ctx, lister.Normalize(path)+"/")
}

// ListContents lists path, descending into subdirectories when deep is set.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) ([]Attributes, error) {
	entries, err := a.lister.List(ctx, path, deep)
	if err != nil {
		return nil, err
	}

	out := make([]Attributes, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, Attributes{Type: lister.TypeDirectory, Path: e.Path})
			continue
		}
		out = append(out, Attributes{
			Type:      lister.TypeFile,
			Path:      e.Path,
			Timestamp: e.LastModified.Unix(),
			Size:      int64(e.Size),
		})
	}
	return out, nil
}

// Metadata returns the backend metadata of path.
func (a *Adapter) Metadata(ctx context.Context, path string) (*filestore.ObjectInfo, error) {
	return a.store.StatObject(ctx, a.bucket, path)
}

// FileSize returns the size of path.
func (a *Adapter) FileSize(ctx context.Context, path string) (*Attributes, error) {
	info, err := a.store.StatObject(ctx, a.bucket, path)
	if err != nil {
		return nil, err
	}
	return &Attributes{Type: lister.TypeFile, Path: path, Size: info.Size}, nil
}

// MimeType returns the stored content type of path.
func (a *Adapter) MimeType(ctx context.Context, path string) (*Attributes, error) {
	info, err := a.store.StatObject(ctx, a.bucket, path)
	if err != nil {
		return nil, err
	}
	return &Attributes{Type: lister.TypeFile, Path: path, MimeType: info.ContentType}, nil
}

// LastModified returns the modification time of path as unix seconds.
func (a *Adapter) LastModified(ctx context.Context, path string) (*Attributes, error) {
	info, err := a.store.StatObject(ctx, a.bucket, path)
	if err != nil {
		return nil, err
	}
	return &Attributes{Type: lister.TypeFile, Path: path, Timestamp: info.LastModified.Unix()}, nil
}

// PublicURL returns a URL that serves path without credentials until ttl elapses.
func (a *Adapter) PublicURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errs.New(errs.ErrKindInvalidInput, "ttl must be positive").WithPath(path)
	}
	return a.store.PresignGetURL(ctx, a.bucket, path, ttl)
}

// done logs the outcome of a mutating operation and returns err unchanged.
func (a *Adapter) done(op, path string, err error, fields ...logger.Fields) error {
	f := logger.Fields{"op": op, "path": path}
	for _, extra := range fields {
		for k, v := range extra {
			f[k] = v
		}
	}
	if err != nil {
		a.log.Warn(op+" failed", f, logger.Fields{"error": err.Error()})
		return err
	}
	a.log.Debug(op, f)
	return nil
}

func putOptions(opts WriteOptions) filestore.PutOptions {
	put := filestore.PutOptions{
		ContentType: opts.ContentType,
		ContentMD5:  opts.ContentMD5,
		Headers:     opts.Headers,
	}
	if opts.Visibility != "" {
		put.ACL = aclFor(opts.Visibility)
	}
	return put
}

func aclFor(v Visibility) filestore.ACL {
	if v == VisibilityPublic {
		return filestore.ACLPublicRead
	}
	return filestore.ACLPrivate
}

func visibilityOf(acl filestore.ACL) Visibility {
	if acl.IsPublic() {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// detectContentType sniffs data and falls back to the file extension when
// the content alone is inconclusive.
func detectContentType(key string, data []byte) string {
	mt := mimetype.Detect(data)
	if !mt.Is("application/octet-stream") && !mt.Is("text/plain") {
		return mt.String()
	}
	if byExt := mime.TypeByExtension(path.Ext(key)); byExt != "" {
		return byExt
	}
	return mt.String()
}
