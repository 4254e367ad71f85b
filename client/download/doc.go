// Package download streams HTTP response bodies to disk.
//
// [Handle] writes the body to a temporary file alongside the destination
// path, then renames it into place on success, so a reader never sees a
// partially written file:
//
//	err := download.Handle(ctx, resp.Body, resp.ContentLength, "/tmp/jdoe.jpg", logger,
//		download.WithMaxSize(4<<20),
//	)
//
// Most callers should use [github.com/adamwoolhether/photosync/client.Client.Download],
// which invokes Handle after checking the response status.
package download
