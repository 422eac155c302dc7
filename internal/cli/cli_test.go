package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
	"github.com/koustreak/objectfs/internal/filestore/memory"
	"github.com/koustreak/objectfs/internal/logger"
	"github.com/koustreak/objectfs/internal/objectfs"
)

// harness runs commands against one shared in-memory bucket.
type harness struct {
	store *memory.Store
	cfgs  []*filestore.Config
}

func newHarness() *harness {
	store := memory.New("media")
	store.SetClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) })
	return &harness{store: store}
}

func (h *harness) open(_ context.Context, cfg *filestore.Config, log *logger.Logger) (*objectfs.Adapter, error) {
	h.cfgs = append(h.cfgs, cfg)
	return objectfs.New(h.store, cfg.Bucket, log), nil
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(h.open)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--provider", "memory", "--bucket", "media"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPutCatList(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "hello world", "put", "docs/readme.txt")
	require.NoError(t, err)
	_, err = h.run(t, "png", "put", "docs/img/logo.png", "-")
	require.NoError(t, err)

	out, err := h.run(t, "", "cat", "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	out, err = h.run(t, "", "ls", "docs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "dir "))
	assert.True(t, strings.HasSuffix(lines[0], "docs/img/"))
	assert.Contains(t, lines[1], "11")
	assert.Contains(t, lines[1], "2024-01-02T03:04:05Z")
	assert.True(t, strings.HasSuffix(lines[1], "docs/readme.txt"))

	out, err = h.run(t, "", "ls", "-r", "docs")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestPutFromFile(t *testing.T) {
	h := newHarness()
	local := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(local, []byte(`{"a":1}`), 0o644))

	_, err := h.run(t, "", "put", "--public", "data/a.json", local)
	require.NoError(t, err)

	out, err := h.run(t, "", "stat", "data/a.json")
	require.NoError(t, err)
	assert.Contains(t, out, "size:          7")
	assert.Contains(t, out, "content-type:  application/json")
	assert.Contains(t, out, "visibility:    public")

	_, err = h.run(t, "", "put", "x", filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestMoveCopyRemove(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.run(t, "a", "put", "a.txt")
	require.NoError(t, err)

	_, err = h.run(t, "", "cp", "a.txt", "b.txt")
	require.NoError(t, err)
	_, err = h.run(t, "", "mv", "a.txt", "c.txt")
	require.NoError(t, err)
	_, err = h.run(t, "", "rm", "b.txt")
	require.NoError(t, err)

	_, err = h.store.StatObject(ctx, "media", "a.txt")
	assert.True(t, errs.IsNotFound(err))
	_, err = h.store.StatObject(ctx, "media", "b.txt")
	assert.True(t, errs.IsNotFound(err))
	_, err = h.store.StatObject(ctx, "media", "c.txt")
	assert.NoError(t, err)
}

func TestMkdirRmdir(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.run(t, "", "mkdir", "tmp")
	require.NoError(t, err)
	_, err = h.store.StatObject(ctx, "media", "tmp/")
	require.NoError(t, err)

	_, err = h.run(t, "x", "put", "tmp/sub/x")
	require.NoError(t, err)
	_, err = h.run(t, "", "rmdir", "tmp")
	require.NoError(t, err)

	page, err := h.store.ListPage(ctx, "media", filestore.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
}

func TestChmod(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "a", "put", "a.txt")
	require.NoError(t, err)

	_, err = h.run(t, "", "chmod", "public", "a.txt")
	require.NoError(t, err)
	acl, err := h.store.GetObjectACL(context.Background(), "media", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, filestore.ACLPublicRead, acl)

	_, err = h.run(t, "", "chmod", "world", "a.txt")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestURL(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "a", "put", "a.txt")
	require.NoError(t, err)

	out, err := h.run(t, "", "url", "--ttl", "30m", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "memory://media/a.txt?expires=2024-01-02T03%3A34%3A05Z\n", out)
}

func TestCatMissing(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "", "cat", "nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestConfigFileAndOverrides(t *testing.T) {
	t.Setenv("OBJFS_TEST_SECRET", "s3cr3t")
	path := filepath.Join(t.TempDir(), "objfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: memory
bucket: from-file
access_key: ak
secret_key: ${OBJFS_TEST_SECRET}
region: eu-west-1
`), 0o644))

	h := newHarness()
	h.store.CreateBucket("from-file")
	root := NewRootCommand(h.open)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path, "--region", "us-west-2", "ls"})
	require.NoError(t, root.Execute())

	require.Len(t, h.cfgs, 1)
	cfg := h.cfgs[0]
	assert.Equal(t, filestore.ProviderMemory, cfg.Provider)
	assert.Equal(t, "from-file", cfg.Bucket)
	assert.Equal(t, "ak", cfg.AccessKey)
	assert.Equal(t, "s3cr3t", cfg.SecretKey)
	assert.Equal(t, "us-west-2", cfg.Region)
}

func TestMissingBucket(t *testing.T) {
	h := newHarness()
	root := NewRootCommand(h.open)
	root.SetArgs([]string{"--provider", "memory", "ls"})

	err := root.Execute()
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, h.cfgs)
}

func TestMemoryProviderHelp(t *testing.T) {
	root := NewRootCommand(nil)

	usage := root.PersistentFlags().Lookup("provider").Usage
	assert.Contains(t, usage, "memory starts empty on every run")
	assert.Contains(t, root.Long, "every invocation starts\nfrom an empty bucket")
}
