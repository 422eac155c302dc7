// Package minio provides a MinIO implementation of filestore.Store.
//
// It talks to any S3-compatible endpoint (MinIO, Aliyun OSS, Ceph RGW, ...).
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	page, err := store.ListPage(ctx, "media", filestore.PageRequest{Prefix: "docs/", Delimiter: "/"})
package minio

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	headerACL         = "x-amz-acl"
	headerContentType = "Content-Type"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	core   *miniogo.Core
}

var _ filestore.Store = (*Driver)(nil)

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	d, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Dial builds a Driver without contacting the server.
func Dial(cfg *filestore.Config) (*Driver, error) {
	transport, err := miniogo.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to build minio transport", err)
	}
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}

	lookup := miniogo.BucketLookupAuto
	switch {
	case cfg.CNAME:
		lookup = miniogo.BucketLookupDNS
	case cfg.ForcePathStyle:
		lookup = miniogo.BucketLookupPath
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		Transport:    transport,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	return &Driver{client: client, core: &miniogo.Core{Client: client}}, nil
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.client.ListBuckets(ctx)
	if err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// ListPage issues a single marker-based ListObjects (v1) request.
func (d *Driver) ListPage(ctx context.Context, bucket string, req filestore.PageRequest) (*filestore.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapError(err, "failed to list objects")
	}

	maxKeys := req.MaxKeys
	if maxKeys <= 0 || maxKeys > filestore.MaxPageSize {
		maxKeys = filestore.MaxPageSize
	}

	res, err := d.core.ListObjects(bucket, req.Prefix, req.Marker, req.Delimiter, maxKeys)
	if err != nil {
		return nil, mapError(err, "failed to list objects").WithPath(req.Prefix)
	}

	return toPage(res), nil
}

// PutObject uploads r. Headers that S3 understands natively are sent as is;
// the rest become x-amz-meta-* user metadata.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts filestore.PutOptions) error {
	_, err := d.client.PutObject(ctx, bucket, key, r, size, putOptions(opts))
	if err != nil {
		return mapError(err, "failed to put object").WithPath(key)
	}
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object").WithPath(key)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get").WithPath(key)
	}

	return &object{ReadCloser: obj, info: toInfo(stat)}, nil
}

// StatObject returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object").WithPath(key)
	}
	return toInfo(stat), nil
}

// CopyObject performs a server-side copy within bucket.
func (d *Driver) CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := d.client.CopyObject(ctx,
		miniogo.CopyDestOptions{Bucket: bucket, Object: dstKey},
		miniogo.CopySrcOptions{Bucket: bucket, Object: srcKey},
	)
	if err != nil {
		return mapError(err, "failed to copy object").WithPath(srcKey)
	}
	return nil
}

// RemoveObject deletes key.
func (d *Driver) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to remove object").WithPath(key)
	}
	return nil
}

// RemoveObjects deletes keys with multi-object delete requests.
// The first per-key failure is returned after the batch drains.
func (d *Driver) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	objects := make(chan miniogo.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- miniogo.ObjectInfo{Key: k}
	}
	close(objects)

	var first *errs.Error
	for rerr := range d.client.RemoveObjects(ctx, bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if first == nil && rerr.Err != nil {
			first = mapError(rerr.Err, "failed to remove object").WithPath(rerr.ObjectName)
		}
	}
	if first != nil {
		return first
	}
	return nil
}

// PutObjectACL applies acl with a metadata-replacing copy of the object onto
// itself; minio-go has no PutObjectAcl call. Standard content headers and
// user metadata are carried over.
func (d *Driver) PutObjectACL(ctx context.Context, bucket, key string, acl filestore.ACL) error {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return mapError(err, "failed to stat object").WithPath(key)
	}

	_, err = d.client.CopyObject(ctx,
		miniogo.CopyDestOptions{Bucket: bucket, Object: key, UserMetadata: aclMetadata(stat, acl), ReplaceMetadata: true},
		miniogo.CopySrcOptions{Bucket: bucket, Object: key},
	)
	if err != nil {
		return mapError(err, "failed to set object acl").WithPath(key)
	}
	return nil
}

// GetObjectACL returns the canned ACL reported for key.
func (d *Driver) GetObjectACL(ctx context.Context, bucket, key string) (filestore.ACL, error) {
	info, err := d.client.GetObjectACL(ctx, bucket, key)
	if err != nil {
		return "", mapError(err, "failed to get object acl").WithPath(key)
	}
	if canned := info.Metadata.Get(headerACL); canned != "" {
		return filestore.ACL(canned), nil
	}
	return filestore.ACLPrivate, nil
}

// PresignGetURL returns a time-limited public download URL for the object.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := d.client.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL").WithPath(key)
	}
	return u.String(), nil
}

// --- internal types ---

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}

func toPage(res miniogo.ListBucketResult) *filestore.Page {
	page := &filestore.Page{
		Prefixes: make([]string, 0, len(res.CommonPrefixes)),
		Objects:  make([]filestore.ObjectInfo, 0, len(res.Contents)),
	}
	for _, p := range res.CommonPrefixes {
		page.Prefixes = append(page.Prefixes, p.Prefix)
	}
	for _, o := range res.Contents {
		page.Objects = append(page.Objects, filestore.ObjectInfo{
			Key:          o.Key,
			Size:         o.Size,
			ETag:         strings.Trim(o.ETag, `"`),
			LastModified: o.LastModified,
			IsDir:        strings.HasSuffix(o.Key, "/"),
		})
	}
	page.NextMarker = filestore.NextMarkerFor(res.IsTruncated, res.NextMarker, page)
	return page
}

func toInfo(stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	meta := make(map[string]string, len(stat.UserMetadata))
	for k, v := range stat.UserMetadata {
		meta[k] = v
	}
	return &filestore.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         strings.Trim(stat.ETag, `"`),
		LastModified: stat.LastModified,
		IsDir:        strings.HasSuffix(stat.Key, "/"),
		Metadata:     meta,
	}
}

// preservedHeaders survive the metadata-replacing copy in PutObjectACL.
var preservedHeaders = []string{
	"Cache-Control",
	"Content-Disposition",
	"Content-Encoding",
	"Content-Language",
}

// aclMetadata rebuilds the replacement metadata of stat with acl applied.
func aclMetadata(stat miniogo.ObjectInfo, acl filestore.ACL) map[string]string {
	meta := make(map[string]string, len(stat.UserMetadata)+len(preservedHeaders)+2)
	for k, v := range stat.UserMetadata {
		meta[k] = v
	}
	for _, h := range preservedHeaders {
		if v := stat.Metadata.Get(h); v != "" {
			meta[h] = v
		}
	}
	if stat.ContentType != "" {
		meta[headerContentType] = stat.ContentType
	}
	meta[headerACL] = string(acl)
	return meta
}

func putOptions(opts filestore.PutOptions) miniogo.PutObjectOptions {
	out := miniogo.PutObjectOptions{
		ContentType:    opts.ContentType,
		SendContentMd5: opts.ContentMD5 != "",
	}
	meta := map[string]string{}
	for k, v := range opts.Headers {
		switch strings.ToLower(k) {
		case "content-type":
			if out.ContentType == "" {
				out.ContentType = v
			}
		case "cache-control":
			out.CacheControl = v
		case "content-disposition":
			out.ContentDisposition = v
		case "content-encoding":
			out.ContentEncoding = v
		case "content-language":
			out.ContentLanguage = v
		default:
			meta[strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")] = v
		}
	}
	if opts.ACL != "" {
		meta[headerACL] = string(opts.ACL)
	}
	if len(meta) > 0 {
		out.UserMetadata = meta
	}
	return out
}
