// Package photosync exposes the client builder used to talk to Microsoft
// Graph and SharePoint Online.
package photosync

import (
	"github.com/adamwoolhether/photosync/client"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, a fresh http.Client over http.DefaultTransport is used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
