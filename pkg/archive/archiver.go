package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skeeterdeleter/pkg/bluesky"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/requester"
)

// Client is the part of the Bluesky client the archiver uses
type Client interface {
	GetRepo(ctx context.Context, did string) ([]byte, error)
	ListBlobs(ctx context.Context, did, cursor string, limit int) (*bluesky.ListBlobsResponse, error)
	GetBlob(ctx context.Context, did, cid string) ([]byte, error)
}

// BlobEntry describes one archived blob
type BlobEntry struct {
	CID  string `json:"cid"`
	File string `json:"file"`
	Size int64  `json:"size,omitempty"`
}

// Manifest lists what a snapshot contains
type Manifest struct {
	Snapshot     string      `json:"snapshot"`
	CreatedAt    time.Time   `json:"created_at"`
	DID          string      `json:"did"`
	Handle       string      `json:"handle,omitempty"`
	RepoFile     string      `json:"repo_file"`
	RepoBytes    int         `json:"repo_bytes"`
	Blobs        []BlobEntry `json:"blobs"`
	MissingBlobs []string    `json:"missing_blobs,omitempty"`
	LikesCursor  string      `json:"likes_cursor,omitempty"`
	PostsCursor  string      `json:"posts_cursor,omitempty"`
}

// Snapshot identifies the account and its resume point at archive time
type Snapshot struct {
	DID         string
	Handle      string
	LikesCursor string
	PostsCursor string
}

// Archiver downloads the account's repository and blobs before deletion
type Archiver struct {
	client Client
	exec   *requester.Executor
	root   string
	logger logger.Logger
	now    func() time.Time
}

// NewArchiver creates an archiver writing under root
func NewArchiver(client Client, exec *requester.Executor, root string, log logger.Logger) *Archiver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Archiver{client: client, exec: exec, root: root, logger: log, now: time.Now}
}

// Run archives the repository and every blob not already on disk, then
// writes the manifest. Each run is a new snapshot; earlier repo and manifest
// files are kept, and blobs are shared between snapshots.
func (a *Archiver) Run(ctx context.Context, snap Snapshot) (*Manifest, error) {
	store, err := NewStore(a.root, snap.DID)
	if err != nil {
		return nil, err
	}
	started := a.now().UTC()
	snapshot := store.SnapshotName(started)

	log := a.logger.WithFields(map[string]interface{}{"did": snap.DID, "snapshot": snapshot})
	log.InfoWithFields("Archiving account", map[string]interface{}{"dir": store.Dir()})

	repo, err := requester.Call(ctx, a.exec, bluesky.OpGetRepo, func(ctx context.Context) ([]byte, error) {
		return a.client.GetRepo(ctx, snap.DID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download repository: %w", err)
	}
	repoName, err := store.SaveRepo(snapshot, repo)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Snapshot:    snapshot,
		CreatedAt:   started,
		DID:         snap.DID,
		Handle:      snap.Handle,
		RepoFile:    repoName,
		RepoBytes:   len(repo),
		Blobs:       []BlobEntry{},
		LikesCursor: snap.LikesCursor,
		PostsCursor: snap.PostsCursor,
	}

	cids, err := a.listBlobs(ctx, snap.DID)
	if err != nil {
		return nil, err
	}

	downloaded := 0
	for _, cid := range cids {
		if name, ok := store.BlobFile(cid); ok {
			manifest.Blobs = append(manifest.Blobs, BlobEntry{CID: cid, File: blobDir + "/" + name})
			continue
		}

		data, err := requester.Call(ctx, a.exec, bluesky.OpGetBlob, func(ctx context.Context) ([]byte, error) {
			return a.client.GetBlob(ctx, snap.DID, cid)
		})
		if err != nil {
			if !blobMissing(err) {
				return nil, fmt.Errorf("failed to download blob %s: %w", cid, err)
			}
			log.WithError(err).WarnWithFields("Blob unavailable, skipping", map[string]interface{}{"cid": cid})
			manifest.MissingBlobs = append(manifest.MissingBlobs, cid)
			continue
		}

		name, err := store.SaveBlob(cid, data)
		if err != nil {
			return nil, err
		}
		downloaded++
		manifest.Blobs = append(manifest.Blobs, BlobEntry{CID: cid, File: blobDir + "/" + name, Size: int64(len(data))})
		log.DebugWithFields("Blob archived", map[string]interface{}{"cid": cid, "bytes": len(data)})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if _, err := store.SaveManifest(snapshot, data); err != nil {
		return nil, err
	}

	log.InfoWithFields("Archive complete", map[string]interface{}{
		"repo_bytes":       len(repo),
		"blobs":            len(manifest.Blobs),
		"blobs_downloaded": downloaded,
		"blobs_missing":    len(manifest.MissingBlobs),
	})
	return manifest, nil
}

func (a *Archiver) listBlobs(ctx context.Context, did string) ([]string, error) {
	var (
		cids   []string
		cursor string
	)
	for {
		page, err := requester.Call(ctx, a.exec, bluesky.OpListBlobs, func(ctx context.Context) (*bluesky.ListBlobsResponse, error) {
			return a.client.ListBlobs(ctx, did, cursor, 0)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		cids = append(cids, page.CIDs...)
		if page.Cursor == "" || page.Cursor == cursor {
			return cids, nil
		}
		cursor = page.Cursor
	}
}

// blobMissing reports whether a blob failure concerns only that blob
func blobMissing(err error) bool {
	return errs.KindOf(err) == errs.ItemActionFailure || errs.IsType(err, errs.ErrorTypeBadRequest)
}
