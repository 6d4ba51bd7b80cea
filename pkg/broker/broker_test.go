package broker

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dtool-irods/pkg/dataset"
	"github.com/marmos91/dtool-irods/pkg/layout"
	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/marmos91/dtool-irods/pkg/remote/badger"
	"github.com/marmos91/dtool-irods/pkg/remote/icommands"
	"github.com/marmos91/dtool-irods/pkg/remote/icommands/fakeirods"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefix is the collection datasets are created under on every backend.
const prefix = fakeirods.Home

type backend struct {
	name string
	new  func(t *testing.T) remote.Remote
}

func backends() []backend {
	return []backend{
		{name: "icommands", new: newFakeRemote},
		{name: "badger", new: newBadgerRemote},
	}
}

func newFakeRemote(t *testing.T) remote.Remote {
	srv := fakeirods.New()
	return icommands.NewClient(icommands.NewGateway(srv), icommands.ParserV4{Location: srv.Location()})
}

func newBadgerRemote(t *testing.T) remote.Remote {
	t.Helper()
	store, err := badger.New(context.Background(), badger.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Mirror the fake zone's home collection.
	ctx := context.Background()
	for _, p := range []string{"/tempZone", "/tempZone/home", prefix} {
		require.NoError(t, store.MakeCollection(ctx, p))
	}
	return store
}

// forEachBackend runs fn once per remote backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, r remote.Remote)) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			fn(t, be.new(t))
		})
	}
}

func newBroker(t *testing.T, r remote.Remote, id string) *Broker {
	t.Helper()
	b, err := New(GenerateURI("ds", id, prefix), r,
		WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		WithTempDir(t.TempDir()),
	)
	require.NoError(t, err)
	return b
}

// newDataset creates the structure and admin metadata of a dataset.
func newDataset(t *testing.T, r remote.Remote, id string) *Broker {
	t.Helper()
	ctx := context.Background()
	b := newBroker(t, r, id)
	require.NoError(t, b.CreateStructure(ctx))
	require.NoError(t, b.PutAdminMetadata(ctx, dataset.AdminMetadata{"uuid": id, "name": "ds"}))
	return b
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "item")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestNew(t *testing.T) {
	r := newFakeRemote(t)

	b, err := New("irods:///tempZone/home/rods/u1/", r)
	require.NoError(t, err)
	assert.Equal(t, "irods:/tempZone/home/rods/u1", b.URI())
	assert.Equal(t, "/tempZone/home/rods/u1", b.Layout().Root)
	assert.Equal(t, Capabilities{ItemMetadata: false}, b.Capabilities())

	_, err = New("s3:/bucket/u1", r)
	assert.Error(t, err)

	_, err = New("irods:/zone/u1", nil)
	assert.Error(t, err)
}

func TestGenerateURI(t *testing.T) {
	a := GenerateURI("ds", "u1", "/zone/home")
	assert.Equal(t, "irods:/zone/home/u1", a)
	assert.Equal(t, a, GenerateURI("other", "u1", "/zone/home"))
	assert.NotEqual(t, a, GenerateURI("ds", "u2", "/zone/home"))
}

func TestCreateStructure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newBroker(t, r, "u1")

		require.NoError(t, b.CreateStructure(ctx))

		for _, dir := range b.Layout().EssentialDirectories() {
			ok, err := r.Exists(ctx, dir)
			require.NoError(t, err)
			assert.True(t, ok, dir)
		}

		var structure map[string][]string
		data, err := r.ReadAll(ctx, b.Layout().StructurePath())
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &structure))
		assert.Equal(t, layout.Structure(), structure)

		readme, err := r.ReadAll(ctx, b.Layout().DtoolReadmePath())
		require.NoError(t, err)
		assert.Equal(t, "README", string(readme[:6]))

		has, err := b.HasAdminMetadata(ctx)
		require.NoError(t, err)
		assert.False(t, has, "a fresh structure is not a dataset yet")
	})
}

func TestCreateStructureExistingRoot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newBroker(t, r, "u1")
		require.NoError(t, b.CreateStructure(ctx))

		err := newBroker(t, r, "u1").CreateStructure(ctx)
		assert.ErrorIs(t, err, remote.ErrAlreadyExists)
	})
}

func TestCreateStructureTransportFailure(t *testing.T) {
	srv := fakeirods.New()
	r := icommands.NewClient(icommands.NewGateway(srv), icommands.ParserV4{})
	srv.FailCommand("ils", -1, "")

	err := newBroker(t, r, "u1").CreateStructure(context.Background())
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Zero(t, srv.CountCalls("imkdir"), "nothing is created when the precondition cannot be checked")
}

func TestConnectionFailureIsNotAbsence(t *testing.T) {
	srv := fakeirods.New()
	r := icommands.NewClient(icommands.NewGateway(srv), icommands.ParserV4{Location: srv.Location()})
	ctx := context.Background()
	b := newDataset(t, r, "u1")

	srv.FailCommand("ils", 4, "ERROR: _rcConnect: connectToRhost error, server on irods:1247 is probably down status = -305111 USER_SOCK_CONNECT_ERR")

	has, err := b.HasAdminMetadata(ctx)
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.False(t, has)

	_, err = ListDatasetURIs(ctx, r, prefix)
	assert.ErrorIs(t, err, remote.ErrTransport)

	imkdirs := srv.CountCalls("imkdir")
	err = newBroker(t, r, "u2").CreateStructure(ctx)
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, imkdirs, srv.CountCalls("imkdir"))
}

func TestAdminMetadataScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newBroker(t, r, "u1")
		require.NoError(t, b.CreateStructure(ctx))

		has, err := b.HasAdminMetadata(ctx)
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, b.PutAdminMetadata(ctx, dataset.AdminMetadata{"uuid": "u1", "name": "ds"}))

		has, err = b.HasAdminMetadata(ctx)
		require.NoError(t, err)
		assert.True(t, has)

		md, err := b.GetAdminMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, dataset.AdminMetadata{"uuid": "u1", "name": "ds"}, md)
	})
}

func TestRecordRoundTrips(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		t.Run("readme", func(t *testing.T) {
			readme := "---\ndescription: my dataset\nproject: x y\n"
			require.NoError(t, b.PutReadme(ctx, readme))
			got, err := b.GetReadmeContent(ctx)
			require.NoError(t, err)
			assert.Equal(t, readme, got)
		})

		t.Run("overlay", func(t *testing.T) {
			overlay := dataset.Overlay{
				"8797e2d671a03a247f46656451e6952a15ba8179": true,
				"fe4c80bb098894b4d6ca36c16082d567bfd41b8b": false,
			}
			require.NoError(t, b.PutOverlay(ctx, "is_red", overlay))
			require.NoError(t, b.PutOverlay(ctx, "colour", dataset.Overlay{}))

			got, err := b.GetOverlay(ctx, "is_red")
			require.NoError(t, err)
			assert.Equal(t, overlay, got)

			names, err := b.ListOverlayNames(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"colour", "is_red"}, names)
		})

		t.Run("overlay overwrite", func(t *testing.T) {
			require.NoError(t, b.PutOverlay(ctx, "o", dataset.Overlay{"a": "1"}))
			require.NoError(t, b.PutOverlay(ctx, "o", dataset.Overlay{"b": "2"}))
			got, err := b.GetOverlay(ctx, "o")
			require.NoError(t, err)
			assert.Equal(t, dataset.Overlay{"b": "2"}, got)
		})

		t.Run("overlay name outside overlays", func(t *testing.T) {
			before, err := b.GetAdminMetadata(ctx)
			require.NoError(t, err)

			err = b.PutOverlay(ctx, "../dtool", dataset.Overlay{"uuid": "hijacked"})
			assert.ErrorIs(t, err, layout.ErrInvalidOverlayName)
			_, err = b.GetOverlay(ctx, "../dtool")
			assert.ErrorIs(t, err, layout.ErrInvalidOverlayName)

			after, err := b.GetAdminMetadata(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})

		t.Run("manifest", func(t *testing.T) {
			manifest := dataset.Manifest{
				DtoolcoreVersion: "3.18.0",
				HashFunction:     dataset.HashFunctionMD5,
				Items: map[string]dataset.ItemProperties{
					dataset.GenerateIdentifier("dir/x.txt"): {
						RelPath: "dir/x.txt", SizeInBytes: 6, Hash: "b1946ac92492d2347c6235b4d2611184", UTCTimestamp: 1506422340,
					},
				},
			}
			require.NoError(t, b.PutManifest(ctx, manifest))
			got, err := b.GetManifest(ctx)
			require.NoError(t, err)
			assert.Equal(t, manifest, got)
		})

		t.Run("missing", func(t *testing.T) {
			_, err := b.GetOverlay(ctx, "nope")
			assert.ErrorIs(t, err, remote.ErrNotFound)

			fresh := newBroker(t, r, "u-missing")
			_, err = fresh.GetManifest(ctx)
			assert.ErrorIs(t, err, remote.ErrNotFound)
		})
	})
}

func TestItems(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		id1, err := b.PutItem(ctx, writeFile(t, "hello\n"), "a/b.txt")
		require.NoError(t, err)
		id2, err := b.PutItem(ctx, writeFile(t, "second"), "c.txt")
		require.NoError(t, err)

		assert.Equal(t, "09a62d2dcd900b1d2da88021afb07884731b8656", id1)
		assert.Equal(t, "fe4c80bb098894b4d6ca36c16082d567bfd41b8b", id2)

		collect := func() []string {
			var ids []string
			for id, err := range b.IterItemHandles(ctx) {
				require.NoError(t, err)
				ids = append(ids, id)
			}
			return ids
		}

		assert.ElementsMatch(t, []string{id1, id2}, collect())
		// Restartable: a second range lists again.
		assert.ElementsMatch(t, []string{id1, id2}, collect())

		// Re-uploading the same handle does not duplicate the item.
		_, err = b.PutItem(ctx, writeFile(t, "hello again\n"), "a/b.txt")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{id1, id2}, collect())
	})
}

func TestIterItemHandlesStopsEarly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")
		for _, h := range []string{"a", "b", "c"} {
			_, err := b.PutItem(ctx, writeFile(t, h), h)
			require.NoError(t, err)
		}

		n := 0
		for range b.IterItemHandles(ctx) {
			n++
			break
		}
		assert.Equal(t, 1, n)
	})
}

func TestIterItemHandlesError(t *testing.T) {
	r := newFakeRemote(t)
	b := newBroker(t, r, "never-created")

	var errs []error
	for _, err := range b.IterItemHandles(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], remote.ErrNotFound)
}

func TestItemProperties(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		before := time.Now().Add(-time.Minute)
		id, err := b.PutItem(ctx, writeFile(t, "hello\n"), "dir/x.txt")
		require.NoError(t, err)
		require.Equal(t, "8797e2d671a03a247f46656451e6952a15ba8179", id)

		props, err := b.ItemProperties(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, "dir/x.txt", props.RelPath)
		assert.Equal(t, int64(6), props.SizeInBytes)
		assert.Equal(t, "b1946ac92492d2347c6235b4d2611184", props.Hash)
		assert.GreaterOrEqual(t, props.UTCTimestamp, before.Unix())
		assert.LessOrEqual(t, props.UTCTimestamp, time.Now().Add(time.Minute).Unix())

		_, err = b.ItemProperties(ctx, dataset.GenerateIdentifier("nope"))
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})
}

func TestItemPropertiesRejectsNonMD5Digest(t *testing.T) {
	srv := fakeirods.New(fakeirods.WithSHA256Checksums())
	r := icommands.NewClient(icommands.NewGateway(srv), icommands.ParserV4{Location: srv.Location()})
	ctx := context.Background()
	b := newDataset(t, r, "u1")

	id, err := b.PutItem(ctx, writeFile(t, "hello\n"), "dir/x.txt")
	require.NoError(t, err)

	_, err = b.ItemProperties(ctx, id)
	assert.ErrorIs(t, err, remote.ErrUnsupportedDigest)
}

func TestItemPropertiesHandleWithSpaces(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		id, err := b.PutItem(ctx, writeFile(t, "x"), "my dir/my file.txt")
		require.NoError(t, err)

		props, err := b.ItemProperties(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "my dir/my file.txt", props.RelPath)
	})
}

func TestGetItemAbspath(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		id, err := b.PutItem(ctx, writeFile(t, "hello\n"), "dir/x.txt")
		require.NoError(t, err)

		first, err := b.GetItemAbspath(ctx, id)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(first))
		assert.Equal(t, filepath.Join("u1", "dir", "x.txt"), lastElems(first, 3))

		second, err := b.GetItemAbspath(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		data, err := os.ReadFile(first)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(data))
	})
}

func TestGetItemAbspathDownloadsOnce(t *testing.T) {
	srv := fakeirods.New()
	r := icommands.NewClient(icommands.NewGateway(srv), icommands.ParserV4{Location: srv.Location()})
	ctx := context.Background()
	b := newDataset(t, r, "u1")

	id, err := b.PutItem(ctx, writeFile(t, "hello\n"), "dir/x.txt")
	require.NoError(t, err)

	for range 3 {
		_, err := b.GetItemAbspath(ctx, id)
		require.NoError(t, err)
	}

	downloads := 0
	for _, call := range srv.Calls() {
		if call[0] == "iget" && call[len(call)-1] != "-" {
			downloads++
		}
	}
	assert.Equal(t, 1, downloads)
}

func TestGetItemAbspathAfterCacheRemoved(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		cacheDir := filepath.Join(t.TempDir(), "cache")

		admin, err := New(GenerateURI("ds", "u1", prefix), r)
		require.NoError(t, err)
		require.NoError(t, admin.CreateStructure(ctx))
		require.NoError(t, admin.PutAdminMetadata(ctx, dataset.AdminMetadata{"uuid": "u1", "name": "ds"}))

		b, err := New(GenerateURI("ds", "u1", prefix), r, WithCacheDir(cacheDir))
		require.NoError(t, err)

		id, err := b.PutItem(ctx, writeFile(t, "hello\n"), "dir/x.txt")
		require.NoError(t, err)

		first, err := b.GetItemAbspath(ctx, id)
		require.NoError(t, err)

		require.NoError(t, os.RemoveAll(cacheDir))

		second, err := b.GetItemAbspath(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		data, err := os.ReadFile(second)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(data))
	})
}

func TestGetItemAbspathErrors(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote(t)

	t.Run("no cache", func(t *testing.T) {
		b, err := New(GenerateURI("ds", "u1", prefix), r)
		require.NoError(t, err)
		_, err = b.GetItemAbspath(ctx, "x")
		assert.ErrorIs(t, err, ErrNoCache)
	})

	t.Run("missing item", func(t *testing.T) {
		b := newDataset(t, r, "u2")
		_, err := b.GetItemAbspath(ctx, dataset.GenerateIdentifier("nope"))
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})

	t.Run("no admin metadata", func(t *testing.T) {
		b := newBroker(t, r, "u3")
		require.NoError(t, b.CreateStructure(ctx))
		_, err := b.GetItemAbspath(ctx, "x")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})
}

func TestItemMetadataIsNotStored(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		require.NoError(t, b.AddItemMetadata(ctx, "dir/x.txt", "colour", "red"))
		md, err := b.GetItemMetadata(ctx, "dir/x.txt")
		require.NoError(t, err)
		assert.Empty(t, md)
		assert.False(t, b.Capabilities().ItemMetadata)
	})
}

func TestPostFreezeHook(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()
		b := newDataset(t, r, "u1")

		// Missing area is fine.
		require.NoError(t, b.PostFreezeHook(ctx))

		fragments := b.Layout().FragmentsDir()
		require.NoError(t, r.MakeCollection(ctx, fragments))
		require.NoError(t, r.Put(ctx, writeFile(t, "{}"), path.Join(fragments, "frag.json")))

		require.NoError(t, b.PostFreezeHook(ctx))
		ok, err := r.Exists(ctx, fragments)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestListDatasetURIs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r remote.Remote) {
		ctx := context.Background()

		var want []string
		for range 3 {
			b := newDataset(t, r, uuid.NewString())
			want = append(want, b.URI())
		}
		// A structure without admin metadata is not a dataset.
		require.NoError(t, newBroker(t, r, "incomplete").CreateStructure(ctx))
		// Neither is a plain data object.
		require.NoError(t, r.Put(ctx, writeFile(t, "x"), path.Join(prefix, "stray")))

		got, err := ListDatasetURIs(ctx, r, prefix)
		require.NoError(t, err)
		slices.Sort(want)
		assert.Equal(t, want, got)
	})
}

func lastElems(p string, n int) string {
	parts := []string{}
	for range n {
		parts = append([]string{filepath.Base(p)}, parts...)
		p = filepath.Dir(p)
	}
	return filepath.Join(parts...)
}
