// Package archive copies an account's repository and blobs to disk before
// anything is deleted.
//
// The archive for an account lives in <root>/<did>/ and holds:
//   - repo-<time>.car: the full repository export from com.atproto.sync.getRepo
//   - blobs/: every blob named by CID, with an extension sniffed from content
//   - manifest-<time>.json: snapshot time, blob list, missing blobs and the
//     resume cursors at archive time
//
// <time> is the run's UTC start, e.g. 20240601T120000Z. Every run adds a
// snapshot, so the repo as it was before an earlier run's deletions stays on
// disk. Blobs already on disk are skipped, so repeated runs only fetch new ones.
// All writes go through a temp file and a rename.
//
// Usage:
//
//	archiver := archive.NewArchiver(client, exec, "archive", log)
//	manifest, err := archiver.Run(ctx, archive.Snapshot{DID: did, Handle: handle})
//	if err != nil {
//	    return err
//	}
package archive
