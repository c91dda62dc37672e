package gallery

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"facegallery/internal/auth"
	"facegallery/internal/blob"
	"facegallery/internal/face"
	"facegallery/internal/metrics"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Deps are the collaborators of a Service.
type Deps struct {
	Users    UserStore
	Images   ImageStore
	Matcher  Matcher
	Blobs    blob.Storage
	Detector face.Detector
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	// Cleanup may be nil; failed blob deletions are then only logged.
	Cleanup CleanupScheduler
	Log     *logrus.Logger
}

// Options tune matching and access.
type Options struct {
	Threshold float64
	// DownloadRequiresMatch limits students to downloading images that
	// match their stored descriptor.
	DownloadRequiresMatch bool
	Now                   func() time.Time
}

// Service coordinates accounts, uploads, verification and access checks.
type Service struct {
	Deps
	threshold    float64
	requireMatch bool
	now          func() time.Time
	entropy      io.Reader

	dimMu     sync.Mutex
	dimension int
}

// NewService wires a service. A zero Matcher falls back to scanning Images.
func NewService(d Deps, opts Options) *Service {
	if d.Matcher == nil {
		d.Matcher = ScanMatcher{Images: d.Images}
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		Deps:         d,
		threshold:    opts.Threshold,
		requireMatch: opts.DownloadRequiresMatch,
		now:          opts.Now,
		entropy:      &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)},
	}
}

// Threshold returns the match distance in use.
func (s *Service) Threshold() float64 { return s.threshold }

// Register creates an account. Role defaults to student.
func (s *Service) Register(ctx context.Context, name, password, role string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return User{}, ErrMissingCredentials
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrPasswordTooShort
	}
	r, err := ParseRole(role)
	if err != nil {
		return User{}, err
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.Users.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		Role:         r,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return User{}, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("user registered")
	return u, nil
}

// Login checks credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, name, password string) (string, User, error) {
	if strings.TrimSpace(name) == "" || password == "" {
		return "", User{}, ErrMissingCredentials
	}
	u, err := s.Users.UserByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}
	if err := s.Hasher.Compare(u.PasswordHash, password); err != nil {
		return "", User{}, ErrInvalidCredentials
	}
	token, err := s.Tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return "", User{}, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// ResolveIdentity loads the live account behind a token.
func (s *Service) ResolveIdentity(ctx context.Context, userID string) (auth.Identity, error) {
	u, err := s.Users.UserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return auth.Identity{}, fmt.Errorf("%w: %w", auth.ErrUnknownIdentity, ErrUnknownUser)
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: u.ID, Name: u.Name, Role: string(u.Role)}, nil
}

// Upload stores an admin's image. The record is written only after a
// single face was found, and the file is committed only after the record;
// a failed commit removes the record again.
func (s *Service) Upload(ctx context.Context, actorID, filename string, data []byte) (Image, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return Image{}, err
	}
	if actor.Role != RoleAdmin {
		return Image{}, ErrAdminOnly
	}
	ext, err := checkImageFile(filename, data)
	if err != nil {
		return Image{}, err
	}

	desc, err := face.ExtractOne(ctx, s.Detector, data, filename)
	if err != nil {
		return Image{}, err
	}
	if err := s.checkDimension(desc); err != nil {
		return Image{}, err
	}

	now := s.now().UTC()
	key, err := s.newKey(now, ext)
	if err != nil {
		return Image{}, err
	}
	img, err := s.Images.InsertImage(ctx, Image{
		ID:             uuid.NewString(),
		Name:           filepath.Base(filename),
		Path:           key,
		UploadedBy:     actor.ID,
		UploaderName:   actor.Name,
		FaceDescriptor: desc,
		UploadDate:     now,
	})
	if err != nil {
		return Image{}, fmt.Errorf("save image record: %w", err)
	}

	if err := s.Blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		// the record must not outlive a file that never landed
		if _, derr := s.Images.DeleteImage(context.WithoutCancel(ctx), img.ID); derr != nil && !errors.Is(derr, ErrNotFound) {
			s.Log.WithFields(logrus.Fields{"image_id": img.ID, "error": derr}).Error("rollback image record")
		}
		return Image{}, fmt.Errorf("store image file: %w", err)
	}

	s.Log.WithFields(logrus.Fields{"image_id": img.ID, "path": key, "uploaded_by": actor.ID}).Info("image uploaded")
	return img, nil
}

// VerifyFace stores the single face of a student's selfie as their
// descriptor, marks them verified and returns how many images match it.
func (s *Service) VerifyFace(ctx context.Context, actorID, filename string, data []byte) (int, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return 0, err
	}
	if actor.Role != RoleStudent {
		return 0, ErrStudentOnly
	}
	if _, err := checkImageFile(filename, data); err != nil {
		return 0, err
	}

	desc, err := face.ExtractOne(ctx, s.Detector, data, filename)
	if err != nil {
		return 0, err
	}
	if err := s.checkDimension(desc); err != nil {
		return 0, err
	}
	if err := s.Users.SetFaceDescriptor(ctx, actor.ID, desc); err != nil {
		return 0, fmt.Errorf("save face descriptor: %w", err)
	}
	matches, err := s.Matcher.MatchImages(ctx, desc, s.threshold)
	if err != nil {
		return 0, fmt.Errorf("match images: %w", err)
	}

	metrics.MatchesReturned.Observe(float64(len(matches)))
	s.Log.WithFields(logrus.Fields{"user_id": actor.ID, "matches": len(matches)}).Info("face verified")
	return len(matches), nil
}

// ListImages returns every image to admins and the matching images to
// verified students.
func (s *Service) ListImages(ctx context.Context, actorID string) ([]Image, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleAdmin {
		return s.Images.ListImages(ctx)
	}
	if !actor.IsVerified || len(actor.FaceDescriptor) == 0 {
		return nil, ErrNotVerified
	}
	matches, err := s.Matcher.MatchImages(ctx, actor.FaceDescriptor, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("match images: %w", err)
	}
	metrics.MatchesReturned.Observe(float64(len(matches)))
	return matches, nil
}

// OpenImage returns an image record with its file. The caller closes the
// reader. A record whose file is gone reads as ErrNotFound.
func (s *Service) OpenImage(ctx context.Context, actorID, imageID string) (Image, io.ReadCloser, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return Image{}, nil, err
	}
	if !validID(imageID) {
		return Image{}, nil, ErrNotFound
	}
	img, err := s.Images.ImageByID(ctx, imageID)
	if err != nil {
		return Image{}, nil, err
	}
	if err := s.canDownload(ctx, actor, img); err != nil {
		return Image{}, nil, err
	}

	rc, err := s.Blobs.Open(ctx, img.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Image{}, nil, ErrNotFound
		}
		return Image{}, nil, fmt.Errorf("open image file: %w", err)
	}
	return img, rc, nil
}

func (s *Service) canDownload(ctx context.Context, actor User, img Image) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	if !actor.IsVerified || len(actor.FaceDescriptor) == 0 {
		return ErrDownloadDenied
	}
	if !s.requireMatch {
		return nil
	}
	if m, ok := s.Matcher.(ImageMatcher); ok {
		matched, err := m.MatchesImage(ctx, actor.FaceDescriptor, img.ID, s.threshold)
		if err != nil {
			return fmt.Errorf("match image: %w", err)
		}
		if !matched {
			return ErrDownloadDenied
		}
		return nil
	}
	matches, err := FindMatches(actor.FaceDescriptor, []Image{img}, s.threshold)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return ErrDownloadDenied
	}
	return nil
}

// DeleteImage removes the record first, then its file. A file that cannot
// be removed is handed to the cleanup scheduler; the delete still succeeds.
func (s *Service) DeleteImage(ctx context.Context, actorID, imageID string) error {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != RoleAdmin {
		return ErrDeleteAdminOnly
	}
	if !validID(imageID) {
		return ErrNotFound
	}
	img, err := s.Images.DeleteImage(ctx, imageID)
	if err != nil {
		return err
	}

	log := s.Log.WithFields(logrus.Fields{"image_id": img.ID, "path": img.Path})
	if err := s.Blobs.Delete(ctx, img.Path); err != nil && !errors.Is(err, blob.ErrNotFound) {
		log.WithError(err).Warn("remove image file, scheduling cleanup")
		if s.Cleanup != nil {
			if serr := s.Cleanup.ScheduleDelete(context.WithoutCancel(ctx), img.Path); serr != nil {
				log.WithError(serr).Error("schedule image file cleanup")
			}
		}
	}
	log.Info("image deleted")
	return nil
}

// ListStudents returns every student account for an admin.
func (s *Service) ListStudents(ctx context.Context, actorID string) ([]User, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin {
		return nil, ErrAdminOnly
	}
	return s.Users.ListStudents(ctx)
}

// Status returns the caller's own account.
func (s *Service) Status(ctx context.Context, actorID string) (User, error) {
	return s.actor(ctx, actorID)
}

// actor loads the calling user. A caller deleted after authenticating is
// ErrUnknownUser, not ErrNotFound, so it is never confused with a missing
// image.
func (s *Service) actor(ctx context.Context, id string) (User, error) {
	u, err := s.Users.UserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnknownUser
	}
	return u, err
}

// validID reports whether id can name a record. Records are keyed by UUID.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func checkImageFile(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNoFile
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedFile
	}
	return ext, nil
}

// newKey names a stored file after its upload time.
func (s *Service) newKey(t time.Time, ext string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", fmt.Errorf("generate file key: %w", err)
	}
	return id.String() + ext, nil
}

// checkDimension pins the descriptor length to the first one seen.
func (s *Service) checkDimension(d face.Descriptor) error {
	s.dimMu.Lock()
	defer s.dimMu.Unlock()
	if s.dimension == 0 {
		s.dimension = len(d)
		return nil
	}
	if len(d) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", face.ErrDimensionMismatch, len(d), s.dimension)
	}
	return nil
}
