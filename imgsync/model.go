package imgsync

import (
	"context"
	"errors"
	"net/http"

	"github.com/adamwoolhether/photosync/client"
	"github.com/adamwoolhether/photosync/client/download"
)

// Outcome reports how a single user's sync ended.
type Outcome int

const (
	// OutcomeNoAccess means SharePoint could not be read with the configured credentials.
	OutcomeNoAccess Outcome = iota + 1
	// OutcomeAlreadySet means the profile already has a picture URL.
	OutcomeAlreadySet
	// OutcomeNoPhotoLibrary means the my-site has no "User Photos" library.
	OutcomeNoPhotoLibrary
	// OutcomeUserNotFound means the directory has no such user.
	OutcomeUserNotFound
	// OutcomeNoPhoto means the directory user has no photo.
	OutcomeNoPhoto
	// OutcomeProfileUpdateFailed means the photo was uploaded but the profile
	// property could not be set.
	OutcomeProfileUpdateFailed
	// OutcomeUpdated means the profile now points at the uploaded photo.
	OutcomeUpdated
)

var outcomeNames = map[Outcome]string{
	OutcomeNoAccess:            "no-access",
	OutcomeAlreadySet:          "already-set",
	OutcomeNoPhotoLibrary:      "no-photo-library",
	OutcomeUserNotFound:        "user-not-found",
	OutcomeNoPhoto:             "no-photo",
	OutcomeProfileUpdateFailed: "profile-update-failed",
	OutcomeUpdated:             "updated",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

var (
	// ErrUserNotFound is returned when the directory has no user by that name.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoPhoto is returned when the directory user has no photo.
	ErrNoPhoto = errors.New("user has no photo")
)

// Doer executes requests built with [client.Request].
// [*client.Client] satisfies it.
type Doer interface {
	Do(req *http.Request, expCode int, opts ...client.DoOption) error
	Download(req *http.Request, expCode int, destPath string, opts ...download.Option) error
}

// User is the subset of a Graph user resource the sync reads.
type User struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

type userPage struct {
	Value    []User `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// PhotoInfo is a Graph profilePhoto resource.
type PhotoInfo struct {
	ID          string `json:"id"`
	Height      int    `json:"height"`
	Width       int    `json:"width"`
	ContentType string `json:"@odata.mediaContentType"`
}

// Web is the subset of an SP.Web the sync reads.
type Web struct {
	Title             string `json:"Title"`
	URL               string `json:"Url"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

// PersonProperties is the subset of SP.UserProfiles.PersonProperties the sync reads.
type PersonProperties struct {
	AccountName string `json:"AccountName"`
	PictureURL  string `json:"PictureUrl"`
}

// UploadedFile is the SP.File returned by a library upload.
type UploadedFile struct {
	Name              string `json:"Name"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

// notFound reports whether err is a 404 from the host.
func notFound(err error) bool {
	var statusErr *client.UnexpectedStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// cancelled reports whether err came from ctx ending.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, client.ErrCancelled)
}
