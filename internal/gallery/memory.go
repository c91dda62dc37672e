package gallery

import (
	"context"
	"slices"
	"strings"
	"sync"

	"facegallery/internal/face"
)

// MemoryRepository keeps users and images in process. It backs tests and
// the zero-infrastructure development mode.
type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[string]User
	names  map[string]string
	images []Image
}

var (
	_ UserStore  = (*MemoryRepository)(nil)
	_ ImageStore = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]User),
		names: make(map[string]string),
	}
}

func (m *MemoryRepository) CreateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.names[u.Name]; taken {
		return User{}, ErrDuplicateName
	}
	u.FaceDescriptor = cloneDescriptor(u.FaceDescriptor)
	m.users[u.ID] = u
	m.names[u.Name] = u.ID
	return u, nil
}

func (m *MemoryRepository) UserByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.FaceDescriptor = cloneDescriptor(u.FaceDescriptor)
	return u, nil
}

func (m *MemoryRepository) UserByName(ctx context.Context, name string) (User, error) {
	m.mu.RLock()
	id, ok := m.names[name]
	m.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return m.UserByID(ctx, id)
}

// ListStudents returns students in registration order.
func (m *MemoryRepository) ListStudents(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []User
	for _, u := range m.users {
		if u.Role == RoleStudent {
			u.FaceDescriptor = cloneDescriptor(u.FaceDescriptor)
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

func (m *MemoryRepository) SetFaceDescriptor(_ context.Context, userID string, d face.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FaceDescriptor = cloneDescriptor(d)
	u.IsVerified = true
	m.users[userID] = u
	return nil
}

func (m *MemoryRepository) InsertImage(_ context.Context, img Image) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img.FaceDescriptor = cloneDescriptor(img.FaceDescriptor)
	m.images = append(m.images, img)
	return img, nil
}

func (m *MemoryRepository) ImageByID(_ context.Context, id string) (Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, img := range m.images {
		if img.ID == id {
			return m.withUploader(img), nil
		}
	}
	return Image{}, ErrNotFound
}

func (m *MemoryRepository) ListImages(_ context.Context) ([]Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Image, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, m.withUploader(img))
	}
	return out, nil
}

func (m *MemoryRepository) DeleteImage(_ context.Context, id string) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, img := range m.images {
		if img.ID == id {
			m.images = append(m.images[:i:i], m.images[i+1:]...)
			return img, nil
		}
	}
	return Image{}, ErrNotFound
}

// withUploader fills the uploader name like a join would. Callers hold mu.
func (m *MemoryRepository) withUploader(img Image) Image {
	if u, ok := m.users[img.UploadedBy]; ok {
		img.UploaderName = u.Name
	}
	img.FaceDescriptor = cloneDescriptor(img.FaceDescriptor)
	return img
}

func cloneDescriptor(d face.Descriptor) face.Descriptor {
	if d == nil {
		return nil
	}
	return append(face.Descriptor(nil), d...)
}

func sortUsers(users []User) {
	slices.SortFunc(users, func(a, b User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}
