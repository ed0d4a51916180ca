package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"skeeterdeleter/internal/pdstest"
	"skeeterdeleter/pkg/bluesky"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/requester"
)

var (
	jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	png  = []byte("\x89PNG\r\n\x1a\n0000")
)

func newArchiver(t *testing.T, pds *pdstest.Server, root string) *Archiver {
	t.Helper()
	tl := logger.NewTestLogger()
	client := bluesky.NewClient(pds.URL, 5*time.Second, tl)
	require.NoError(t, client.Login(context.Background(), pds.Handle, "app-password"))

	clock := ratelimit.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	exec := requester.New(requester.Options{Gate: ratelimit.NewGate(ratelimit.DefaultInterval, clock), Clock: clock, Logger: tl})
	a := NewArchiver(client, exec, root, tl)
	a.now = clock.Now
	return a
}

func TestArchiveRepoAndBlobs(t *testing.T) {
	pds := pdstest.New(t)
	pds.SetRepo([]byte("car-bytes"))
	pds.AddBlob("bafyjpeg", jpeg)
	pds.AddBlob("bafypng", png)
	pds.AddBlob("bafytext", []byte("plain text"))
	root := t.TempDir()
	a := newArchiver(t, pds, root)

	manifest, err := a.Run(context.Background(), Snapshot{DID: pds.DID, Handle: pds.Handle, LikesCursor: "lc"})
	require.NoError(t, err)

	dir := filepath.Join(root, "did_plc_testaccount")
	assert.Equal(t, "repo-"+manifest.Snapshot+".car", manifest.RepoFile)
	repo, err := os.ReadFile(filepath.Join(dir, manifest.RepoFile))
	require.NoError(t, err)
	assert.Equal(t, []byte("car-bytes"), repo)

	for _, name := range []string{"bafyjpeg.jpg", "bafypng.png", "bafytext.bin"} {
		assert.FileExists(t, filepath.Join(dir, "blobs", name))
	}

	assert.Equal(t, 9, manifest.RepoBytes)
	assert.Len(t, manifest.Blobs, 3)
	assert.Equal(t, "lc", manifest.LikesCursor)
	assert.Equal(t, 2, pds.Calls(bluesky.OpListBlobs), "blob listing is paginated")

	raw, err := os.ReadFile(filepath.Join(dir, ManifestFileName(manifest.Snapshot)))
	require.NoError(t, err)
	var onDisk Manifest
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, pds.DID, onDisk.DID)
	assert.Equal(t, "blobs/bafyjpeg.jpg", onDisk.Blobs[0].File)
}

func TestArchiveSkipsBlobsAlreadyOnDisk(t *testing.T) {
	pds := pdstest.New(t)
	pds.SetRepo([]byte("car"))
	pds.AddBlob("bafyjpeg", jpeg)
	pds.AddBlob("bafypng", png)
	root := t.TempDir()

	_, err := newArchiver(t, pds, root).Run(context.Background(), Snapshot{DID: pds.DID})
	require.NoError(t, err)
	require.Equal(t, 2, pds.Calls(bluesky.OpGetBlob))

	manifest, err := newArchiver(t, pds, root).Run(context.Background(), Snapshot{DID: pds.DID})
	require.NoError(t, err)
	assert.Equal(t, 2, pds.Calls(bluesky.OpGetBlob), "second run downloads nothing new")
	assert.Len(t, manifest.Blobs, 2)
}

func TestEachRunKeepsItsOwnSnapshot(t *testing.T) {
	pds := pdstest.New(t)
	pds.AddBlob("bafyjpeg", jpeg)
	root := t.TempDir()
	a := newArchiver(t, pds, root)
	ctx := context.Background()

	pds.SetRepo([]byte("before-deletions"))
	first, err := a.Run(ctx, Snapshot{DID: pds.DID})
	require.NoError(t, err)

	pds.SetRepo([]byte("after-deletions"))
	second, err := a.Run(ctx, Snapshot{DID: pds.DID})
	require.NoError(t, err)

	require.NotEqual(t, first.Snapshot, second.Snapshot)
	dir := filepath.Join(root, "did_plc_testaccount")
	for _, tt := range []struct {
		manifest *Manifest
		repo     string
	}{{first, "before-deletions"}, {second, "after-deletions"}} {
		data, err := os.ReadFile(filepath.Join(dir, tt.manifest.RepoFile))
		require.NoError(t, err)
		assert.Equal(t, tt.repo, string(data))
		assert.FileExists(t, filepath.Join(dir, ManifestFileName(tt.manifest.Snapshot)))
	}
	assert.Equal(t, 1, pds.Calls(bluesky.OpGetBlob), "blobs are shared between snapshots")
}

func TestSnapshotNameIsUnique(t *testing.T) {
	s, err := NewStore(t.TempDir(), "did:plc:abc")
	require.NoError(t, err)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	name := s.SnapshotName(at)
	assert.Equal(t, "20240601T120000Z", name)
	_, err = s.SaveRepo(name, []byte("car"))
	require.NoError(t, err)

	assert.Equal(t, "20240601T120000Z-2", s.SnapshotName(at))
}

func TestArchiveRecordsMissingBlob(t *testing.T) {
	pds := pdstest.New(t)
	pds.SetRepo([]byte("car"))
	pds.AddBlob("bafyjpeg", jpeg)
	pds.Inject(bluesky.OpGetBlob, pdstest.Failure{Status: 400, Error: "BlobNotFound"})

	manifest, err := newArchiver(t, pds, t.TempDir()).Run(context.Background(), Snapshot{DID: pds.DID})
	require.NoError(t, err)
	assert.Equal(t, []string{"bafyjpeg"}, manifest.MissingBlobs)
	assert.Empty(t, manifest.Blobs)
}

func TestArchiveFailsOnRepoError(t *testing.T) {
	pds := pdstest.New(t)
	pds.Inject(bluesky.OpGetRepo, pdstest.Failure{Status: 403})

	_, err := newArchiver(t, pds, t.TempDir()).Run(context.Background(), Snapshot{DID: pds.DID})
	require.Error(t, err)
	assert.Equal(t, errs.FatalFailure, errs.KindOf(err))
	assert.Contains(t, err.Error(), "failed to download repository")
}

func TestStoreIndexesExistingBlobs(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root, "did:plc:abc")
	require.NoError(t, err)

	name, err := s.SaveBlob("bafy1", jpeg)
	require.NoError(t, err)
	assert.Equal(t, "bafy1.jpg", name)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "blobs", "partial.tmp"), []byte("x"), 0644))

	reopened, err := NewStore(root, "did:plc:abc")
	require.NoError(t, err)
	assert.True(t, reopened.HasBlob("bafy1"))
	assert.False(t, reopened.HasBlob("partial"))
	assert.Equal(t, 1, reopened.BlobCount())
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionFor(jpeg))
	assert.Equal(t, ".png", ExtensionFor(png))
	assert.Equal(t, ".gif", ExtensionFor([]byte("GIF89a......")))
	assert.Equal(t, ".bin", ExtensionFor([]byte("hello")))
}
