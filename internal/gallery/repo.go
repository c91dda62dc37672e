package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"facegallery/internal/face"
)

const (
	uniqueViolation = "23505"
	// ids are uuid columns; a malformed id cannot name a row
	invalidTextRepresentation = "22P02"
)

// Repository persists users and images in Postgres. Descriptors live in
// pgvector columns so matching can also run inside the database.
type Repository struct {
	db *sql.DB
}

var (
	_ UserStore    = (*Repository)(nil)
	_ ImageStore   = (*Repository)(nil)
	_ Matcher      = (*Repository)(nil)
	_ ImageMatcher = (*Repository)(nil)
)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, password_hash, role, face_descriptor, is_verified, created_at`

func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, password_hash, role, face_descriptor, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, u.ID, u.Name, u.PasswordHash, string(u.Role), vectorArg(u.FaceDescriptor), u.IsVerified, u.CreatedAt)
	if err := row.Scan(&u.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrDuplicateName
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repository) UserByID(ctx context.Context, id string) (User, error) {
	return r.userWhere(ctx, "id = $1", id)
}

func (r *Repository) UserByName(ctx context.Context, name string) (User, error) {
	return r.userWhere(ctx, "name = $1", name)
}

func (r *Repository) userWhere(ctx context.Context, cond string, arg any) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg)
	u, err := scanUser(row)
	if err != nil {
		if noRow(err) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// ListStudents returns students in registration order.
func (r *Repository) ListStudents(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE role = $1
		ORDER BY created_at, name
	`, string(RoleStudent))
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) SetFaceDescriptor(ctx context.Context, userID string, d face.Descriptor) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET face_descriptor = $2, is_verified = TRUE
		WHERE id = $1
	`, userID, vectorArg(d))
	if err != nil {
		return fmt.Errorf("update face descriptor: %w", err)
	}
	return expectOne(res)
}

const imageSelect = `
	SELECT i.id, i.name, i.path, i.uploaded_by, COALESCE(u.name, ''), i.face_descriptor, i.upload_date
	FROM images i
	LEFT JOIN users u ON u.id = i.uploaded_by`

func (r *Repository) InsertImage(ctx context.Context, img Image) (Image, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO images (id, name, path, uploaded_by, face_descriptor, upload_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING upload_date
	`, img.ID, img.Name, img.Path, img.UploadedBy, vectorArg(img.FaceDescriptor), img.UploadDate)
	if err := row.Scan(&img.UploadDate); err != nil {
		return Image{}, fmt.Errorf("insert image: %w", err)
	}
	return img, nil
}

func (r *Repository) ImageByID(ctx context.Context, id string) (Image, error) {
	row := r.db.QueryRowContext(ctx, imageSelect+` WHERE i.id = $1`, id)
	img, err := scanImage(row)
	if err != nil {
		if noRow(err) {
			return Image{}, ErrNotFound
		}
		return Image{}, fmt.Errorf("select image: %w", err)
	}
	return img, nil
}

func (r *Repository) ListImages(ctx context.Context) ([]Image, error) {
	return r.queryImages(ctx, imageSelect+` ORDER BY i.upload_date, i.id`)
}

// MatchImages runs the threshold test in Postgres with pgvector's
// Euclidean operator. Same contract as FindMatches.
func (r *Repository) MatchImages(ctx context.Context, query face.Descriptor, threshold float64) ([]Image, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query descriptor", face.ErrDimensionMismatch)
	}
	return r.queryImages(ctx, imageSelect+`
		WHERE i.face_descriptor IS NOT NULL AND i.face_descriptor <-> $1::vector < $2
		ORDER BY i.upload_date, i.id`, pgvector.NewVector(query), threshold)
}

// MatchesImage applies the MatchImages comparison to one image. An image
// without a descriptor never matches.
func (r *Repository) MatchesImage(ctx context.Context, query face.Descriptor, imageID string, threshold float64) (bool, error) {
	if len(query) == 0 {
		return false, fmt.Errorf("%w: empty query descriptor", face.ErrDimensionMismatch)
	}
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(face_descriptor <-> $1::vector < $2, false)
		FROM images WHERE id = $3
	`, pgvector.NewVector(query), threshold, imageID).Scan(&ok)
	if err != nil {
		if noRow(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("match image: %w", err)
	}
	return ok, nil
}

// DeleteImage deletes conditionally; zero affected rows is ErrNotFound.
func (r *Repository) DeleteImage(ctx context.Context, id string) (Image, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM images WHERE id = $1
		RETURNING id, name, path, uploaded_by, upload_date
	`, id)
	var img Image
	if err := row.Scan(&img.ID, &img.Name, &img.Path, &img.UploadedBy, &img.UploadDate); err != nil {
		if noRow(err) {
			return Image{}, ErrNotFound
		}
		return Image{}, fmt.Errorf("delete image: %w", err)
	}
	return img, nil
}

func (r *Repository) queryImages(ctx context.Context, query string, args ...any) ([]Image, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (User, error) {
	var (
		u    User
		role string
		vec  sql.Null[pgvector.Vector]
	)
	if err := s.Scan(&u.ID, &u.Name, &u.PasswordHash, &role, &vec, &u.IsVerified, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	if vec.Valid {
		u.FaceDescriptor = vec.V.Slice()
	}
	return u, nil
}

func scanImage(s scanner) (Image, error) {
	var (
		img Image
		vec sql.Null[pgvector.Vector]
	)
	if err := s.Scan(&img.ID, &img.Name, &img.Path, &img.UploadedBy, &img.UploaderName, &vec, &img.UploadDate); err != nil {
		return Image{}, err
	}
	if vec.Valid {
		img.FaceDescriptor = vec.V.Slice()
	}
	return img, nil
}

// vectorArg maps a missing descriptor to SQL NULL.
func vectorArg(d face.Descriptor) any {
	if len(d) == 0 {
		return nil
	}
	return pgvector.NewVector(d)
}

// noRow reports whether err means the addressed row does not exist.
func noRow(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
