package imgsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/adamwoolhether/photosync/client"
	"github.com/adamwoolhether/photosync/client/download"
)

// DefaultGraphBase is the Microsoft Graph v1.0 endpoint.
const DefaultGraphBase = "https://graph.microsoft.com/v1.0"

// maxPhotoSize bounds photos read from the directory. Entra ID stores
// photos up to 4MB.
const maxPhotoSize = 4 << 20

// Graph reads users and their photos from Microsoft Graph.
type Graph struct {
	c    Doer
	base *url.URL
}

// NewGraph returns a Graph client rooted at base, normally [DefaultGraphBase].
func NewGraph(c Doer, base string) (*Graph, error) {
	if c == nil {
		return nil, errors.New("graph client must not be nil")
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing graph base: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("graph base %q must be absolute", base)
	}

	return &Graph{c: c, base: u}, nil
}

func (g *Graph) url(qs map[string]string, elem ...string) *url.URL {
	p := path.Join(append([]string{"/", g.base.Path}, elem...)...)

	var opts []client.URLOption
	if qs != nil {
		opts = append(opts, client.WithQueryStrings(qs))
	}

	return client.URL(g.base.Scheme, g.base.Host, p, opts...)
}

// User looks up a user by user principal name or object id.
func (g *Graph) User(ctx context.Context, upn string) (User, error) {
	u := g.url(map[string]string{"$select": "id,userPrincipalName,displayName"}, "users", upn)

	req, err := client.Request(ctx, u, http.MethodGet)
	if err != nil {
		return User{}, err
	}

	var user User
	if err := g.c.Do(req, http.StatusOK, client.WithDestination(&user)); err != nil {
		if notFound(err) {
			return User{}, fmt.Errorf("%s: %w", upn, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// ExternalUsers lists the directory's guest accounts, following every
// result page. Page links must stay on the Graph host.
func (g *Graph) ExternalUsers(ctx context.Context) ([]User, error) {
	next := g.url(map[string]string{
		"$filter": "userType eq 'Guest'",
		"$select": "id,userPrincipalName,displayName",
	}, "users")

	var users []User
	for next != nil {
		req, err := client.Request(ctx, next, http.MethodGet)
		if err != nil {
			return nil, err
		}

		var page userPage
		if err := g.c.Do(req, http.StatusOK, client.WithDestination(&page)); err != nil {
			return nil, fmt.Errorf("list guest users: %w", err)
		}
		users = append(users, page.Value...)

		next = nil
		if page.NextLink != "" {
			u, err := g.base.Parse(page.NextLink)
			if err != nil {
				return nil, fmt.Errorf("parsing next link: %w", err)
			}
			if u.Host != g.base.Host {
				return nil, fmt.Errorf("next link leaves graph host: %s", u.Host)
			}
			next = u
		}
	}

	return users, nil
}

// PhotoInfo returns the metadata of the user's photo.
func (g *Graph) PhotoInfo(ctx context.Context, userID string) (PhotoInfo, error) {
	req, err := client.Request(ctx, g.url(nil, "users", userID, "photo"), http.MethodGet)
	if err != nil {
		return PhotoInfo{}, err
	}

	var info PhotoInfo
	if err := g.c.Do(req, http.StatusOK, client.WithDestination(&info)); err != nil {
		if notFound(err) {
			return PhotoInfo{}, fmt.Errorf("%s: %w", userID, ErrNoPhoto)
		}
		return PhotoInfo{}, fmt.Errorf("get photo info: %w", err)
	}

	return info, nil
}

// Photo returns the bytes of the user's photo.
func (g *Graph) Photo(ctx context.Context, userID string) ([]byte, error) {
	req, err := client.Request(ctx, g.url(nil, "users", userID, "photo", "$value"), http.MethodGet)
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := g.c.Do(req, http.StatusOK, client.WithBytes(&data)); err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%s: %w", userID, ErrNoPhoto)
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}

	if len(data) > maxPhotoSize {
		return nil, fmt.Errorf("photo is %d bytes: %w", len(data), download.ErrTooLarge)
	}

	return data, nil
}

// DownloadPhoto streams the user's photo to destPath.
func (g *Graph) DownloadPhoto(ctx context.Context, userID, destPath string, opts ...download.Option) error {
	req, err := client.Request(ctx, g.url(nil, "users", userID, "photo", "$value"), http.MethodGet)
	if err != nil {
		return err
	}

	opts = append([]download.Option{download.WithMaxSize(maxPhotoSize)}, opts...)
	if err := g.c.Download(req, http.StatusOK, destPath, opts...); err != nil {
		if notFound(err) {
			return fmt.Errorf("%s: %w", userID, ErrNoPhoto)
		}
		return fmt.Errorf("download photo: %w", err)
	}

	return nil
}
