// Package gallery implements the face-gated image gallery: accounts, image
// records with their descriptors, matching and the access rules around them.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facegallery/internal/face"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrMissingCredentials = errors.New("name and password are required")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters long")
	ErrDuplicateName      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUnknownUser        = errors.New("user no longer exists")

	ErrNoFile          = errors.New("no file uploaded")
	ErrUnsupportedFile = errors.New("only image files are allowed")
	ErrFileTooLarge    = errors.New("file too large")

	ErrAdminOnly       = errors.New("admin role required")
	ErrStudentOnly     = errors.New("student role required")
	ErrDeleteAdminOnly = errors.New("only admins can delete images")
	ErrNotVerified     = errors.New("face verification required")
	ErrDownloadDenied  = errors.New("access denied")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Role decides what a user may do.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// ParseRole maps the registration input to a role. Empty means student.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleStudent, nil
	case RoleAdmin, RoleStudent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// User is an account. FaceDescriptor and IsVerified are set by a successful
// face verification and overwritten by the next one.
type User struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	PasswordHash   string          `json:"-"`
	Role           Role            `json:"role"`
	FaceDescriptor face.Descriptor `json:"-"`
	IsVerified     bool            `json:"isVerified"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Image is an uploaded file and the descriptor of the one face on it.
type Image struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Path           string          `json:"path"`
	UploadedBy     string          `json:"uploadedBy"`
	UploaderName   string          `json:"uploaderName,omitempty"`
	FaceDescriptor face.Descriptor `json:"-"`
	UploadDate     time.Time       `json:"uploadDate"`
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser fails with ErrDuplicateName when the name is taken.
	CreateUser(ctx context.Context, u User) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UserByName(ctx context.Context, name string) (User, error)
	ListStudents(ctx context.Context) ([]User, error)
	// SetFaceDescriptor stores d and marks the user verified.
	SetFaceDescriptor(ctx context.Context, userID string, d face.Descriptor) error
}

// ImageStore persists image records. Listings are in upload order.
type ImageStore interface {
	InsertImage(ctx context.Context, img Image) (Image, error)
	ImageByID(ctx context.Context, id string) (Image, error)
	ListImages(ctx context.Context) ([]Image, error)
	// DeleteImage removes the record and returns it, or ErrNotFound if
	// nothing was deleted.
	DeleteImage(ctx context.Context, id string) (Image, error)
}

// Matcher finds the images whose descriptor lies strictly closer than
// threshold to query, in upload order.
type Matcher interface {
	MatchImages(ctx context.Context, query face.Descriptor, threshold float64) ([]Image, error)
}

// ImageMatcher is a Matcher that can test a single image. OpenImage uses
// it so a download is judged by the same comparison as the listing.
type ImageMatcher interface {
	MatchesImage(ctx context.Context, query face.Descriptor, imageID string, threshold float64) (bool, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, role string) (string, error)
}

// CleanupScheduler retries blob deletions that failed inline.
type CleanupScheduler interface {
	ScheduleDelete(ctx context.Context, key string) error
}
