package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a DownloadFunc writing fixed content and counting calls.
type counter struct {
	calls   int
	content []byte
	err     error
}

func (d *counter) download(_ context.Context, dest string) error {
	d.calls++
	if d.err != nil {
		_ = os.WriteFile(dest, []byte("partial"), 0644)
		return d.err
	}
	return os.WriteFile(dest, d.content, 0644)
}

func newCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return c
}

func TestFetchMissThenHit(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := newCache(t, WithMetrics(metrics.NewCacheMetricsWith(reg)))
	d := &counter{content: []byte("hello\n")}

	first, err := c.Fetch(ctx, "u1", "8797e2d671a03a247f46656451e6952a15ba8179", "dir/x.txt", d.download)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Root(), "u1", "dir", "x.txt"), first)

	second, err := c.Fetch(ctx, "u1", "8797e2d671a03a247f46656451e6952a15ba8179", "dir/x.txt", d.download)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, d.calls, "second fetch must not download")

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), data)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "dtool_irods_cache_lookups_total"))
}

func TestFetchReusesFileFromEarlierProcess(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first, err := New(root)
	require.NoError(t, err)
	_, err = first.Fetch(ctx, "u1", "id", "a/b.txt", (&counter{content: []byte("x")}).download)
	require.NoError(t, err)

	second, err := New(root)
	require.NoError(t, err)
	d := &counter{content: []byte("other")}
	p, err := second.Fetch(ctx, "u1", "id", "a/b.txt", d.download)
	require.NoError(t, err)
	assert.Zero(t, d.calls)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestFetchNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	p1, err := c.Fetch(ctx, "u1", "id", "x.txt", (&counter{content: []byte("one")}).download)
	require.NoError(t, err)
	p2, err := c.Fetch(ctx, "u2", "id", "x.txt", (&counter{content: []byte("two")}).download)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	d1, _ := os.ReadFile(p1)
	d2, _ := os.ReadFile(p2)
	assert.Equal(t, "one", string(d1))
	assert.Equal(t, "two", string(d2))
}

func TestFetchFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	d := &counter{err: errors.New("iget failed")}

	_, err := c.Fetch(ctx, "u1", "id", "dir/x.txt", d.download)
	assert.ErrorContains(t, err, "iget failed")

	entries, err := os.ReadDir(filepath.Join(c.Root(), "u1", "dir"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial file may remain")

	// The next fetch retries the download.
	d.err = nil
	d.content = []byte("ok")
	_, err = c.Fetch(ctx, "u1", "id", "dir/x.txt", d.download)
	require.NoError(t, err)
	assert.Equal(t, 2, d.calls)
}

func TestPathRejectsEscapes(t *testing.T) {
	c := newCache(t)

	for _, handle := range []string{"", "../x", "a/../../x", "/etc/passwd"} {
		_, err := c.Path("u1", handle)
		assert.Error(t, err, handle)
	}
	for _, ns := range []string{"", "..", "a/b"} {
		_, err := c.Path(ns, "x.txt")
		assert.Error(t, err, ns)
	}

	p, err := c.Path("u1", "a/./b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Root(), "u1", "a", "b.txt"), p)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	d := &counter{content: []byte("x")}

	p, err := c.Fetch(ctx, "u1", "id", "x.txt", d.download)
	require.NoError(t, err)
	require.NoError(t, c.Clear("u1"))

	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	_, err = c.Fetch(ctx, "u1", "id", "x.txt", d.download)
	require.NoError(t, err)
	assert.Equal(t, 2, d.calls, "a cleared entry is downloaded again")
}

func TestLookup(t *testing.T) {
	c := newCache(t)

	_, ok := c.Lookup("u1", "id")
	assert.False(t, ok)

	p, err := c.Fetch(context.Background(), "u1", "id", "x.txt", (&counter{content: []byte("x")}).download)
	require.NoError(t, err)

	got, ok := c.Lookup("u1", "id")
	assert.True(t, ok)
	assert.Equal(t, p, got)
}

func TestFetchAfterRootRemoved(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	d := &counter{content: []byte("hello\n")}

	p, err := c.Fetch(ctx, "u1", "id", "dir/x.txt", d.download)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(c.Root()))

	_, ok := c.Lookup("u1", "id")
	assert.False(t, ok, "a removed file is not a hit")

	again, err := c.Fetch(ctx, "u1", "id", "dir/x.txt", d.download)
	require.NoError(t, err)
	assert.Equal(t, p, again)
	assert.Equal(t, 2, d.calls)

	data, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), data)
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
