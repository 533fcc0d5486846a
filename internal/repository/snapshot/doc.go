// Package snapshot persists the latest sensor Snapshot.
//
// The FileRepository stores and loads the snapshot as JSON on disk. The same
// structpb encoding is served by the status endpoint, so the state file and
// the gRPC response have the same shape.
package snapshot
