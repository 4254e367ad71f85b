package imgsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/adamwoolhether/photosync/client"
)

const (
	// PhotoLibrary is the my-site document library that holds profile pictures.
	PhotoLibrary = "User Photos"
	// PhotoFolder is the folder inside PhotoLibrary that uploads go to.
	PhotoFolder = PhotoLibrary + "/Profile Pictures"

	odataJSON = "application/json;odata=nometadata"
)

// Site talks to the REST API of one SharePoint Online site.
type Site struct {
	c    Doer
	base *url.URL
}

// NewSite returns a Site client for the site at base,
// e.g. "https://contoso-my.sharepoint.com".
func NewSite(c Doer, base string) (*Site, error) {
	if c == nil {
		return nil, errors.New("site client must not be nil")
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing site url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("site url %q must be absolute", base)
	}

	return &Site{c: c, base: u}, nil
}

// AccountName returns the claims-encoded SharePoint account for an Entra ID user.
func AccountName(upn string) string {
	return "i:0#.f|membership|" + upn
}

// literal quotes s as an OData string literal.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (s *Site) url(qs map[string]string, elem ...string) *url.URL {
	p := path.Join(append([]string{"/", s.base.Path, "_api"}, elem...)...)

	var opts []client.URLOption
	if qs != nil {
		opts = append(opts, client.WithQueryStrings(qs))
	}

	return client.URL(s.base.Scheme, s.base.Host, p, opts...)
}

func (s *Site) get(ctx context.Context, u *url.URL, dest client.DoOption) error {
	req, err := client.Request(ctx, u, http.MethodGet,
		client.WithHeaders(map[string][]string{"Accept": {odataJSON}}),
	)
	if err != nil {
		return err
	}

	return s.c.Do(req, http.StatusOK, dest)
}

// Web reads the site's title and URLs.
func (s *Site) Web(ctx context.Context) (Web, error) {
	var web Web
	if err := s.get(ctx, s.url(map[string]string{"$select": "Title,Url,ServerRelativeUrl"}, "web"), client.WithDestination(&web)); err != nil {
		return Web{}, fmt.Errorf("get web: %w", err)
	}

	return web, nil
}

// ProfileProperties reads the user profile of account through the PeopleManager.
func (s *Site) ProfileProperties(ctx context.Context, account string) (PersonProperties, error) {
	u := s.url(
		map[string]string{"@v": literal(account)},
		"SP.UserProfiles.PeopleManager", "GetPropertiesFor(accountName=@v)",
	)

	var props PersonProperties
	if err := s.get(ctx, u, client.WithDestination(&props)); err != nil {
		return PersonProperties{}, fmt.Errorf("get profile properties: %w", err)
	}

	return props, nil
}

// FolderExists reports whether the folder at the server-relative url exists.
func (s *Site) FolderExists(ctx context.Context, serverRelativeURL string) (bool, error) {
	u := s.url(
		map[string]string{"$select": "Exists"},
		"web", "GetFolderByServerRelativeUrl("+literal(serverRelativeURL)+")",
	)

	var folder struct {
		Exists bool `json:"Exists"`
	}
	if err := s.get(ctx, u, client.WithDestination(&folder)); err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get folder: %w", err)
	}

	return folder.Exists, nil
}

// Upload adds data as name to the folder at the server-relative url,
// replacing any file of the same name.
func (s *Site) Upload(ctx context.Context, folder, name string, data []byte) (UploadedFile, error) {
	u := s.url(nil,
		"web", "GetFolderByServerRelativeUrl("+literal(folder)+")",
		"Files", "add(url="+literal(name)+",overwrite=true)",
	)

	req, err := client.Request(ctx, u, http.MethodPost,
		client.WithRawPayload(data),
		client.WithContentType("image/jpeg"),
		client.WithHeaders(map[string][]string{"Accept": {odataJSON}}),
	)
	if err != nil {
		return UploadedFile{}, err
	}

	var file UploadedFile
	if err := s.c.Do(req, http.StatusOK, client.WithDestination(&file)); err != nil {
		return UploadedFile{}, fmt.Errorf("upload %s: %w", name, err)
	}

	return file, nil
}

// SetProfileProperty sets a single-valued user profile property of account.
func (s *Site) SetProfileProperty(ctx context.Context, account, property, value string) error {
	body := struct {
		AccountName   string `json:"accountName"`
		PropertyName  string `json:"propertyName"`
		PropertyValue string `json:"propertyValue"`
	}{
		AccountName:   account,
		PropertyName:  property,
		PropertyValue: value,
	}

	req, err := client.Request(ctx, s.url(nil, "SP.UserProfiles.PeopleManager", "SetSingleValueProfileProperty"), http.MethodPost,
		client.WithPayload(body),
		client.WithContentType(odataJSON),
		client.WithHeaders(map[string][]string{"Accept": {odataJSON}}),
	)
	if err != nil {
		return err
	}

	// SharePoint answers 200 with an empty body or 204, depending on the tenant.
	if err := s.c.Do(req, http.StatusOK); err != nil {
		var statusErr *client.UnexpectedStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNoContent {
			return nil
		}
		return fmt.Errorf("set %s: %w", property, err)
	}

	return nil
}
