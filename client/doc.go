// Package client provides the core implementation of the configurable HTTP
// client built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithCredentials(auth.Config{...}),
//		client.WithMaxAttempts(5),
//	)
//
// # Authentication and throttling
//
// With [WithCredentials] or [WithTokenSource] every request carries a bearer
// token. The token is fetched on first use and replaced once it is within
// the refresh margin of expiry. Requests the host throttles (429, or 503
// with Retry-After by default) are resent after the hinted delay until
// [WithMaxAttempts] dispatches have been made, at which point [Client.Send]
// returns a [ThrottledError].
//
// Errors from [Client.Send] match exactly one of [ErrCredential],
// [ErrThrottled], [ErrTransport] and [ErrCancelled].
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("https", "graph.microsoft.com", "/v1.0/users/"+upn)
//	req, err := client.Request(ctx, u, http.MethodGet)
//	err = c.Do(req, http.StatusOK, client.WithDestination(&user))
//
// # Downloading Files
//
// Stream a response body directly to disk:
//
//	err = c.Download(req, http.StatusOK, "/tmp/photo.jpg",
//		download.WithMaxSize(4<<20),
//		download.WithProgress(),
//	)
//
// For lower-level control see the
// [github.com/adamwoolhether/photosync/client/download] package.
package client
