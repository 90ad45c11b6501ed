package store

import (
	"context"
	"sync"

	"github.com/kjstillabower/location-forecast-service/internal/models"
	"github.com/kjstillabower/location-forecast-service/internal/service"
)

var _ service.LocationRepository = (*MemoryStore)(nil)

// MemoryStore is an in-process LocationRepository for local runs and tests.
// Ids are assigned from monotonically increasing counters, so id order is insertion order.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	locations []models.Location
	nextUser  int64
	nextLoc   int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User)}
}

func (m *MemoryStore) EnsureUser(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[name]; ok {
		return nil
	}
	m.nextUser++
	m.users[name] = models.User{ID: m.nextUser, Name: name}
	return nil
}

func (m *MemoryStore) FindUser(ctx context.Context, name string) (models.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[name]
	return u, ok, nil
}

func (m *MemoryStore) ListLocations(ctx context.Context, userID int64) ([]models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Location{}
	for _, l := range m.locations {
		if l.UserID == userID {
			out = append(out, cloneLocation(l))
		}
	}
	return out, nil
}

func (m *MemoryStore) CountLocations(ctx context.Context, userID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(userID), nil
}

// InsertLocation appends a location unless the user already holds limit of them.
// The count and the append happen under one write lock.
func (m *MemoryStore) InsertLocation(ctx context.Context, userID int64, d models.Descriptor, limit int) (models.Location, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countLocked(userID) >= limit {
		return models.Location{}, false, nil
	}
	m.nextLoc++
	loc := models.Location{ID: m.nextLoc, UserID: userID, Descriptor: cloneDescriptor(d)}
	m.locations = append(m.locations, loc)
	return cloneLocation(loc), true, nil
}

func (m *MemoryStore) UpdateLocation(ctx context.Context, id int64, d models.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.locations {
		if m.locations[i].ID == id {
			m.locations[i].Descriptor = cloneDescriptor(d)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) DeleteLocation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.locations {
		if m.locations[i].ID == id {
			m.locations = append(m.locations[:i], m.locations[i+1:]...)
			return nil
		}
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) countLocked(userID int64) int {
	n := 0
	for _, l := range m.locations {
		if l.UserID == userID {
			n++
		}
	}
	return n
}

// cloneDescriptor copies the pointed-to values so callers cannot mutate stored rows.
func cloneDescriptor(d models.Descriptor) models.Descriptor {
	var out models.Descriptor
	if d.Zip != nil {
		z := *d.Zip
		out.Zip = &z
	}
	if d.Lat != nil {
		v := *d.Lat
		out.Lat = &v
	}
	if d.Lon != nil {
		v := *d.Lon
		out.Lon = &v
	}
	return out
}

func cloneLocation(l models.Location) models.Location {
	l.Descriptor = cloneDescriptor(l.Descriptor)
	return l
}
