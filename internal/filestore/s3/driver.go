// Package s3 provides an AWS S3 implementation of filestore.Store built on
// aws-sdk-go-v2.
//
// Credentials come from Config when AccessKey/SecretKey are set, otherwise
// from the SDK default chain (environment, shared profile, IMDS).
package s3

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
)

// DefaultRegion is used when neither Config nor the environment names one
// and no custom endpoint is set.
const DefaultRegion = "us-east-1"

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

// API is the subset of *s3.Client the driver calls.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjects(ctx context.Context, params *s3.ListObjectsInput, optFns ...func(*s3.Options)) (*s3.ListObjectsOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
	GetObjectAcl(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
}

// Driver is an S3 implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client    API
	presigner *s3.PresignClient
	bucket    string
}

var _ filestore.Store = (*Driver)(nil)

// New builds an S3 client from cfg and verifies access to cfg.Bucket.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to load aws config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg))
		}
	})

	d := &Driver{client: client, presigner: s3.NewPresignClient(client), bucket: cfg.Bucket}
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWithClient wraps an existing client. bucket is the one Ping checks.
func NewWithClient(client API, presigner *s3.PresignClient, bucket string) *Driver {
	return &Driver{client: client, presigner: presigner, bucket: bucket}
}

func loadAWSConfig(ctx context.Context, cfg *filestore.Config) (aws.Config, error) {
	httpClient := awshttp.NewBuildableClient().
		WithTimeout(cfg.Timeout).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cfg.ConnectTimeout
		})

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultRegion
	}
	return awsCfg, nil
}

func endpointURL(cfg *filestore.Config) string {
	if strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	if cfg.UseSSL {
		return "https://" + cfg.Endpoint
	}
	return "http://" + cfg.Endpoint
}

// --- filestore.Store implementation ---

// Ping checks that the configured bucket is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return mapError(err, "ping failed").WithPath(d.bucket)
	}
	return nil
}

// Close is a no-op; the SDK client needs no cleanup.
func (d *Driver) Close() error {
	return nil
}

// ListPage issues a single marker-based ListObjects (v1) request.
func (d *Driver) ListPage(ctx context.Context, bucket string, req filestore.PageRequest) (*filestore.Page, error) {
	maxKeys := req.MaxKeys
	if maxKeys <= 0 || maxKeys > filestore.MaxPageSize {
		maxKeys = filestore.MaxPageSize
	}

	input := &s3.ListObjectsInput{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(req.Prefix),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if req.Delimiter != "" {
		input.Delimiter = aws.String(req.Delimiter)
	}
	if req.Marker != "" {
		input.Marker = aws.String(req.Marker)
	}

	out, err := d.client.ListObjects(ctx, input)
	if err != nil {
		return nil, mapError(err, "failed to list objects").WithPath(req.Prefix)
	}

	page := &filestore.Page{
		Prefixes: make([]string, 0, len(out.CommonPrefixes)),
		Objects:  make([]filestore.ObjectInfo, 0, len(out.Contents)),
	}
	for _, p := range out.CommonPrefixes {
		page.Prefixes = append(page.Prefixes, aws.ToString(p.Prefix))
	}
	for _, o := range out.Contents {
		key := aws.ToString(o.Key)
		page.Objects = append(page.Objects, filestore.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(o.Size),
			ETag:         cleanETag(aws.ToString(o.ETag)),
			LastModified: aws.ToTime(o.LastModified),
			IsDir:        strings.HasSuffix(key, "/"),
		})
	}
	page.NextMarker = filestore.NextMarkerFor(aws.ToBool(out.IsTruncated), aws.ToString(out.NextMarker), page)
	return page, nil
}

// PutObject uploads r. A body of unknown size is buffered first, since
// PutObject needs a length or a seekable stream.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts filestore.PutOptions) error {
	if size < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return errs.Wrap(errs.ErrKindBackendFailed, "failed to read upload body", err).WithPath(key)
		}
		r = bytes.NewReader(data)
		size = int64(len(data))
	}

	input := putInput(bucket, key, opts)
	input.Body = r
	input.ContentLength = aws.Int64(size)

	if _, err := d.client.PutObject(ctx, input); err != nil {
		return mapError(err, "failed to put object").WithPath(key)
	}
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, mapError(err, "failed to get object").WithPath(key)
	}
	return &object{
		ReadCloser: out.Body,
		info: &filestore.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(out.ContentLength),
			ContentType:  aws.ToString(out.ContentType),
			ETag:         cleanETag(aws.ToString(out.ETag)),
			LastModified: aws.ToTime(out.LastModified),
			IsDir:        strings.HasSuffix(key, "/"),
			Metadata:     out.Metadata,
		},
	}, nil
}

// StatObject returns metadata for key from a HeadObject request.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, mapError(err, "failed to stat object").WithPath(key)
	}
	return &filestore.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         cleanETag(aws.ToString(out.ETag)),
		LastModified: aws.ToTime(out.LastModified),
		IsDir:        strings.HasSuffix(key, "/"),
		Metadata:     out.Metadata,
	}, nil
}

// CopyObject performs a server-side copy within bucket.
func (d *Driver) CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(bucket, srcKey)),
	})
	if err != nil {
		return mapError(err, "failed to copy object").WithPath(srcKey)
	}
	return nil
}

// RemoveObject deletes key.
func (d *Driver) RemoveObject(ctx context.Context, bucket, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return mapError(err, "failed to remove object").WithPath(key)
	}
	return nil
}

// RemoveObjects deletes keys in batches of filestore.MaxPageSize.
func (d *Driver) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	for start := 0; start < len(keys); start += filestore.MaxPageSize {
		end := min(start+filestore.MaxPageSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return mapError(err, "failed to remove objects").WithPath(bucket)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return errs.New(errs.ErrKindBackendFailed,
				"failed to remove object: "+aws.ToString(e.Code)+" "+aws.ToString(e.Message)).
				WithPath(aws.ToString(e.Key))
		}
	}
	return nil
}

// PutObjectACL applies a canned ACL to key.
func (d *Driver) PutObjectACL(ctx context.Context, bucket, key string, acl filestore.ACL) error {
	_, err := d.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACL(acl),
	})
	if err != nil {
		return mapError(err, "failed to set object acl").WithPath(key)
	}
	return nil
}

// GetObjectACL reduces the object's grants to a canned ACL: AllUsers WRITE
// means public-read-write, AllUsers READ means public-read.
func (d *Driver) GetObjectACL(ctx context.Context, bucket, key string) (filestore.ACL, error) {
	out, err := d.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", mapError(err, "failed to get object acl").WithPath(key)
	}
	return cannedACL(out.Grants), nil
}

// PresignGetURL returns a time-limited public download URL for the object.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if d.presigner == nil {
		return "", errs.New(errs.ErrKindInvalidInput, "presigning is not configured")
	}
	req, err := d.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL").WithPath(key)
	}
	return req.URL, nil
}

// --- internal helpers ---

// object wraps a GetObject body and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}

func putInput(bucket, key string, opts filestore.PutOptions) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentMD5 != "" {
		input.ContentMD5 = aws.String(opts.ContentMD5)
	}
	if opts.ACL != "" && opts.ACL != filestore.ACLDefault {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}

	meta := map[string]string{}
	for k, v := range opts.Headers {
		switch strings.ToLower(k) {
		case "content-type":
			if input.ContentType == nil {
				input.ContentType = aws.String(v)
			}
		case "cache-control":
			input.CacheControl = aws.String(v)
		case "content-disposition":
			input.ContentDisposition = aws.String(v)
		case "content-encoding":
			input.ContentEncoding = aws.String(v)
		case "content-language":
			input.ContentLanguage = aws.String(v)
		default:
			meta[strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")] = v
		}
	}
	if len(meta) > 0 {
		input.Metadata = meta
	}
	return input
}

func cannedACL(grants []types.Grant) filestore.ACL {
	acl := filestore.ACLPrivate
	for _, g := range grants {
		if g.Grantee == nil || aws.ToString(g.Grantee.URI) != allUsersURI {
			continue
		}
		switch g.Permission {
		case types.PermissionWrite, types.PermissionFullControl:
			return filestore.ACLPublicReadWrite
		case types.PermissionRead:
			acl = filestore.ACLPublicRead
		}
	}
	return acl
}

// copySource URL-encodes each segment of key for the x-amz-copy-source header.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(seg), "+", "%20")
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// cleanETag removes surrounding quotes from an ETag value.
func cleanETag(etag string) string {
	return strings.Trim(etag, `"`)
}
