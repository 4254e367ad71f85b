package imgsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/adamwoolhether/photosync/client/download"
)

// PictureProperty is the user profile property holding the picture URL.
const PictureProperty = "PictureURL"

// Option is a functional option for configuring a [Syncer] via [NewSyncer].
type Option func(*Syncer) error

// WithLogger injects a custom [slog.Logger] into the [Syncer].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithFileNamer overrides how uploaded photos are named.
func WithFileNamer(fn func() string) Option {
	return func(s *Syncer) error {
		if fn == nil {
			return errors.New("file namer must not be nil")
		}
		s.fileName = fn
		return nil
	}
}

// Syncer runs the photo sync for one user at a time.
// Profile reads and writes go to the admin site, photo storage to the my-site.
type Syncer struct {
	graph    *Graph
	admin    *Site
	mySite   *Site
	logger   *slog.Logger
	fileName func() string
}

// NewSyncer constructs a Syncer.
func NewSyncer(graph *Graph, admin, mySite *Site, opts ...Option) (*Syncer, error) {
	if graph == nil || admin == nil || mySite == nil {
		return nil, errors.New("graph, admin and my-site clients are required")
	}

	s := &Syncer{
		graph:    graph,
		admin:    admin,
		mySite:   mySite,
		logger:   slog.Default(),
		fileName: thumbnailName,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("applying syncer option: %w", err)
		}
	}

	return s, nil
}

func thumbnailName() string {
	return uuid.NewString() + "_ExternalMigratedThumbnail.jpg"
}

// SyncExternalUsers runs [Syncer.Sync] for every guest account in the
// directory, one user after another. report, when not nil, receives each
// user's outcome. The run stops at the first error.
func (s *Syncer) SyncExternalUsers(ctx context.Context, report func(upn string, o Outcome)) error {
	users, err := s.graph.ExternalUsers(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("found external users", "count", len(users))

	for _, u := range users {
		outcome, err := s.Sync(ctx, u.UserPrincipalName)
		if err != nil {
			return fmt.Errorf("%s: %w", u.UserPrincipalName, err)
		}
		if report != nil {
			report(u.UserPrincipalName, outcome)
		}
	}

	return nil
}

// Sync copies the directory photo of username into their SharePoint profile
// when the profile has no picture yet.
//
// Conditions that end the sync for this user, such as a missing photo or
// an inaccessible site, are reported as an [Outcome] with a nil error.
// Errors are returned for failures the caller should stop on: cancellation,
// exhausted throttle retries and rejected credentials past the access check.
func (s *Syncer) Sync(ctx context.Context, username string) (Outcome, error) {
	log := s.logger.With("user", username)
	account := AccountName(username)

	log.Debug("testing access to sharepoint")
	web, props, err := s.access(ctx, account)
	if err != nil {
		if cancelled(ctx, err) {
			return 0, err
		}
		log.Warn("can't access sharepoint", "error", err)
		return OutcomeNoAccess, nil
	}

	if props.PictureURL != "" {
		log.Info("profile already has a picture", "picture_url", props.PictureURL)
		return OutcomeAlreadySet, nil
	}
	log.Info("profile has no picture")

	library := strings.TrimRight(web.ServerRelativeURL, "/") + "/" + PhotoLibrary
	exists, err := s.mySite.FolderExists(ctx, library)
	if err != nil {
		return 0, fmt.Errorf("checking photo library: %w", err)
	}
	if !exists {
		log.Warn("can't find photo library", "library", PhotoLibrary)
		return OutcomeNoPhotoLibrary, nil
	}

	user, err := s.graph.User(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		log.Info("user not found in directory")
		return OutcomeUserNotFound, nil
	case err != nil:
		return 0, err
	}

	if _, err := s.graph.PhotoInfo(ctx, user.ID); err != nil {
		if errors.Is(err, ErrNoPhoto) {
			log.Info("user has no photo in directory, skipping")
			return OutcomeNoPhoto, nil
		}
		return 0, err
	}

	photo, err := s.graph.Photo(ctx, user.ID)
	switch {
	case errors.Is(err, ErrNoPhoto):
		log.Info("user has no photo in directory, skipping")
		return OutcomeNoPhoto, nil
	case err != nil:
		return 0, err
	}

	folder := strings.TrimRight(web.ServerRelativeURL, "/") + "/" + PhotoFolder
	name := s.fileName()
	if _, err := s.mySite.Upload(ctx, folder, name, photo); err != nil {
		return 0, err
	}

	pictureURL := strings.TrimRight(web.URL, "/") + "/" + PhotoFolder + "/" + name
	log.Info("uploaded photo", "url", pictureURL, "bytes", len(photo))

	if err := s.admin.SetProfileProperty(ctx, account, PictureProperty, pictureURL); err != nil {
		if cancelled(ctx, err) {
			return 0, err
		}
		log.Warn("profile update failed", "error", err)
		return OutcomeProfileUpdateFailed, nil
	}

	log.Info("profile updated with directory photo")

	return OutcomeUpdated, nil
}

// access reads the my-site web and the user's profile, proving both sites
// accept the configured credentials.
func (s *Syncer) access(ctx context.Context, account string) (Web, PersonProperties, error) {
	web, err := s.mySite.Web(ctx)
	if err != nil {
		return Web{}, PersonProperties{}, err
	}

	props, err := s.admin.ProfileProperties(ctx, account)
	if err != nil {
		return Web{}, PersonProperties{}, err
	}

	return web, props, nil
}

// ExportPhoto writes the directory photo of username to destPath.
func (s *Syncer) ExportPhoto(ctx context.Context, username, destPath string, opts ...download.Option) error {
	user, err := s.graph.User(ctx, username)
	if err != nil {
		return err
	}

	if err := s.graph.DownloadPhoto(ctx, user.ID, destPath, opts...); err != nil {
		return err
	}

	s.logger.Info("exported photo", "user", username, "path", destPath)

	return nil
}
