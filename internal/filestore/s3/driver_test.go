package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
)

// mockClient implements API with overridable function fields.
type mockClient struct {
	HeadBucketFunc    func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	ListObjectsFunc   func(context.Context, *s3.ListObjectsInput) (*s3.ListObjectsOutput, error)
	PutObjectFunc     func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	GetObjectFunc     func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	HeadObjectFunc    func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	CopyObjectFunc    func(context.Context, *s3.CopyObjectInput) (*s3.CopyObjectOutput, error)
	DeleteObjectFunc  func(context.Context, *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	DeleteObjectsFunc func(context.Context, *s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error)
	PutObjectAclFunc  func(context.Context, *s3.PutObjectAclInput) (*s3.PutObjectAclOutput, error)
	GetObjectAclFunc  func(context.Context, *s3.GetObjectAclInput) (*s3.GetObjectAclOutput, error)
}

func (m *mockClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.HeadBucketFunc != nil {
		return m.HeadBucketFunc(ctx, in)
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockClient) ListObjects(ctx context.Context, in *s3.ListObjectsInput, _ ...func(*s3.Options)) (*s3.ListObjectsOutput, error) {
	if m.ListObjectsFunc != nil {
		return m.ListObjectsFunc(ctx, in)
	}
	return &s3.ListObjectsOutput{}, nil
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, in)
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.GetObjectFunc != nil {
		return m.GetObjectFunc(ctx, in)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, in)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockClient) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if m.CopyObjectFunc != nil {
		return m.CopyObjectFunc(ctx, in)
	}
	return &s3.CopyObjectOutput{}, nil
}

func (m *mockClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, in)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockClient) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if m.DeleteObjectsFunc != nil {
		return m.DeleteObjectsFunc(ctx, in)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (m *mockClient) PutObjectAcl(ctx context.Context, in *s3.PutObjectAclInput, _ ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
	if m.PutObjectAclFunc != nil {
		return m.PutObjectAclFunc(ctx, in)
	}
	return &s3.PutObjectAclOutput{}, nil
}

func (m *mockClient) GetObjectAcl(ctx context.Context, in *s3.GetObjectAclInput, _ ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
	if m.GetObjectAclFunc != nil {
		return m.GetObjectAclFunc(ctx, in)
	}
	return &s3.GetObjectAclOutput{}, nil
}

func TestListPage(t *testing.T) {
	modified := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	var got *s3.ListObjectsInput
	client := &mockClient{
		ListObjectsFunc: func(_ context.Context, in *s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			got = in
			return &s3.ListObjectsOutput{
				CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("docs/img/")}},
				Contents: []types.Object{
					{Key: aws.String("docs/readme.txt"), Size: aws.Int64(10), ETag: aws.String(`"e1"`), LastModified: aws.Time(modified)},
				},
				IsTruncated: aws.Bool(true),
				NextMarker:  aws.String("docs/readme.txt"),
			}, nil
		},
	}
	d := NewWithClient(client, nil, "media")

	page, err := d.ListPage(context.Background(), "media", filestore.PageRequest{
		Prefix: "docs/", Delimiter: "/", Marker: "docs/a", MaxKeys: 5000,
	})
	require.NoError(t, err)

	assert.Equal(t, "media", aws.ToString(got.Bucket))
	assert.Equal(t, "docs/", aws.ToString(got.Prefix))
	assert.Equal(t, "/", aws.ToString(got.Delimiter))
	assert.Equal(t, "docs/a", aws.ToString(got.Marker))
	assert.Equal(t, int32(filestore.MaxPageSize), aws.ToInt32(got.MaxKeys))

	assert.Equal(t, []string{"docs/img/"}, page.Prefixes)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, filestore.ObjectInfo{Key: "docs/readme.txt", Size: 10, ETag: "e1", LastModified: modified}, page.Objects[0])
	assert.Equal(t, "docs/readme.txt", page.NextMarker)
}

func TestListPage_DerivesMarkerWhenMissing(t *testing.T) {
	client := &mockClient{
		ListObjectsFunc: func(context.Context, *s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return &s3.ListObjectsOutput{
				CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("a/z/")}},
				Contents:       []types.Object{{Key: aws.String("a/b"), Size: aws.Int64(1)}},
				IsTruncated:    aws.Bool(true),
			}, nil
		},
	}

	page, err := NewWithClient(client, nil, "b").ListPage(context.Background(), "b", filestore.PageRequest{Prefix: "a/"})
	require.NoError(t, err)
	assert.Equal(t, "a/z/", page.NextMarker)
}

func TestListPage_Error(t *testing.T) {
	client := &mockClient{
		ListObjectsFunc: func(context.Context, *s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}

	_, err := NewWithClient(client, nil, "b").ListPage(context.Background(), "b", filestore.PageRequest{Prefix: "a/"})
	assert.True(t, errs.IsPermissionDenied(err))
}

func TestPutObject_MapsOptions(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	client := &mockClient{
		PutObjectFunc: func(_ context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			got = in
			body, _ = io.ReadAll(in.Body)
			return &s3.PutObjectOutput{}, nil
		},
	}

	err := NewWithClient(client, nil, "b").PutObject(context.Background(), "b", "k.txt",
		strings.NewReader("hello"), -1, filestore.PutOptions{
			ContentType: "text/plain",
			ContentMD5:  "XUFAKrxLKna5cZ2REBfFkg==",
			ACL:         filestore.ACLPublicRead,
			Headers:     map[string]string{"Cache-Control": "no-cache", "x-amz-meta-owner": "ops"},
		})
	require.NoError(t, err)

	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), aws.ToInt64(got.ContentLength))
	assert.Equal(t, "text/plain", aws.ToString(got.ContentType))
	assert.Equal(t, "XUFAKrxLKna5cZ2REBfFkg==", aws.ToString(got.ContentMD5))
	assert.Equal(t, types.ObjectCannedACLPublicRead, got.ACL)
	assert.Equal(t, "no-cache", aws.ToString(got.CacheControl))
	assert.Equal(t, map[string]string{"owner": "ops"}, got.Metadata)
}

func TestCopyObject_Source(t *testing.T) {
	var got *s3.CopyObjectInput
	client := &mockClient{
		CopyObjectFunc: func(_ context.Context, in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
			got = in
			return &s3.CopyObjectOutput{}, nil
		},
	}

	require.NoError(t, NewWithClient(client, nil, "b").CopyObject(context.Background(), "b", "src/a.txt", "dst/a.txt"))
	assert.Equal(t, "b/src/a.txt", aws.ToString(got.CopySource))
	assert.Equal(t, "dst/a.txt", aws.ToString(got.Key))

	require.NoError(t, NewWithClient(client, nil, "b").CopyObject(context.Background(), "b", "dir/a b+c?.txt", "x"))
	assert.Equal(t, "b/dir/a%20b%2Bc%3F.txt", aws.ToString(got.CopySource))
}

func TestCopySource(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "plain/key.txt", want: "media/plain/key.txt"},
		{key: "100%/x", want: "media/100%25/x"},
		{key: "docs/résumé.pdf", want: "media/docs/r%C3%A9sum%C3%A9.pdf"},
		{key: "a&b=c/d#e", want: "media/a%26b%3Dc/d%23e"},
		{key: "dir/", want: "media/dir/"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, copySource("media", tt.key))
		})
	}
}

func TestRemoveObjects_Batches(t *testing.T) {
	var batches []int
	client := &mockClient{
		DeleteObjectsFunc: func(_ context.Context, in *s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error) {
			batches = append(batches, len(in.Delete.Objects))
			return &s3.DeleteObjectsOutput{}, nil
		},
	}

	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = "k" + strings.Repeat("x", i%7)
	}
	require.NoError(t, NewWithClient(client, nil, "b").RemoveObjects(context.Background(), "b", keys))
	assert.Equal(t, []int{1000, 1000, 500}, batches)
}

func TestRemoveObjects_ReportsKeyErrors(t *testing.T) {
	client := &mockClient{
		DeleteObjectsFunc: func(context.Context, *s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error) {
			return &s3.DeleteObjectsOutput{Errors: []types.Error{
				{Key: aws.String("a"), Code: aws.String("AccessDenied"), Message: aws.String("no")},
			}}, nil
		},
	}

	err := NewWithClient(client, nil, "b").RemoveObjects(context.Background(), "b", []string{"a"})
	require.Error(t, err)
	assert.True(t, errs.IsBackendFailed(err))
	assert.Contains(t, err.Error(), `"a"`)
}

func TestGetObjectACL(t *testing.T) {
	allUsers := &types.Grantee{URI: aws.String(allUsersURI), Type: types.TypeGroup}
	owner := &types.Grantee{ID: aws.String("owner"), Type: types.TypeCanonicalUser}

	tests := []struct {
		name   string
		grants []types.Grant
		want   filestore.ACL
	}{
		{name: "owner only", grants: []types.Grant{{Grantee: owner, Permission: types.PermissionFullControl}}, want: filestore.ACLPrivate},
		{name: "public read", grants: []types.Grant{{Grantee: owner, Permission: types.PermissionFullControl}, {Grantee: allUsers, Permission: types.PermissionRead}}, want: filestore.ACLPublicRead},
		{name: "public write", grants: []types.Grant{{Grantee: allUsers, Permission: types.PermissionRead}, {Grantee: allUsers, Permission: types.PermissionWrite}}, want: filestore.ACLPublicReadWrite},
		{name: "no grantee", grants: []types.Grant{{Permission: types.PermissionRead}}, want: filestore.ACLPrivate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{
				GetObjectAclFunc: func(context.Context, *s3.GetObjectAclInput) (*s3.GetObjectAclOutput, error) {
					return &s3.GetObjectAclOutput{Grants: tt.grants}, nil
				},
			}
			acl, err := NewWithClient(client, nil, "b").GetObjectACL(context.Background(), "b", "k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, acl)
		})
	}
}

func TestStatObject_NotFound(t *testing.T) {
	client := &mockClient{
		HeadObjectFunc: func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, &types.NotFound{}
		},
	}

	_, err := NewWithClient(client, nil, "b").StatObject(context.Background(), "b", "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestPresign_NotConfigured(t *testing.T) {
	_, err := NewWithClient(&mockClient{}, nil, "b").PresignGetURL(context.Background(), "b", "k", time.Minute)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{name: "cancelled", err: context.Canceled, want: errs.ErrKindTimeout},
		{name: "typed no such key", err: &types.NoSuchKey{}, want: errs.ErrKindNotFound},
		{name: "typed no such bucket", err: &types.NoSuchBucket{}, want: errs.ErrKindNotFound},
		{name: "api slow down", err: &smithy.GenericAPIError{Code: "SlowDown"}, want: errs.ErrKindTimeout},
		{name: "api bad digest", err: &smithy.GenericAPIError{Code: "BadDigest"}, want: errs.ErrKindInvalidInput},
		{name: "api other", err: &smithy.GenericAPIError{Code: "InternalError"}, want: errs.ErrKindBackendFailed},
		{name: "message fallback", err: errors.New("operation error S3: NoSuchBucket"), want: errs.ErrKindNotFound},
		{name: "network", err: errors.New("dial tcp: i/o timeout"), want: errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL(&filestore.Config{Endpoint: "localhost:9000"}))
	assert.Equal(t, "https://oss.example.com", endpointURL(&filestore.Config{Endpoint: "oss.example.com", UseSSL: true}))
	assert.Equal(t, "https://x.example.com", endpointURL(&filestore.Config{Endpoint: "https://x.example.com"}))
}
