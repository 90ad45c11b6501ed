package service

import (
	"context"
	"errors"
	"sync"

	"github.com/kjstillabower/location-forecast-service/internal/models"
)

// fakeRepo is a minimal LocationRepository; calls counts every method invocation
// so tests can assert validation failures never reach storage.
type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]models.User
	locs    []models.Location
	nextID  int64
	calls   int
	failAll error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]models.User{}}
}

func (f *fakeRepo) touch() error {
	f.calls++
	return f.failAll
}

func (f *fakeRepo) EnsureUser(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return err
	}
	if _, ok := f.users[name]; !ok {
		f.users[name] = models.User{ID: int64(len(f.users) + 1), Name: name}
	}
	return nil
}

func (f *fakeRepo) FindUser(ctx context.Context, name string) (models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return models.User{}, false, err
	}
	u, ok := f.users[name]
	return u, ok, nil
}

func (f *fakeRepo) ListLocations(ctx context.Context, userID int64) ([]models.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return nil, err
	}
	var out []models.Location
	for _, l := range f.locs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountLocations(ctx context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return 0, err
	}
	n := 0
	for _, l := range f.locs {
		if l.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) InsertLocation(ctx context.Context, userID int64, d models.Descriptor, limit int) (models.Location, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return models.Location{}, false, err
	}
	n := 0
	for _, l := range f.locs {
		if l.UserID == userID {
			n++
		}
	}
	if n >= limit {
		return models.Location{}, false, nil
	}
	f.nextID++
	loc := models.Location{ID: f.nextID, UserID: userID, Descriptor: d}
	f.locs = append(f.locs, loc)
	return loc, true, nil
}

func (f *fakeRepo) UpdateLocation(ctx context.Context, id int64, d models.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return err
	}
	for i := range f.locs {
		if f.locs[i].ID == id {
			f.locs[i].Descriptor = d
		}
	}
	return nil
}

func (f *fakeRepo) DeleteLocation(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(); err != nil {
		return err
	}
	for i := range f.locs {
		if f.locs[i].ID == id {
			f.locs = append(f.locs[:i], f.locs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRepo) Ping(ctx context.Context) error {
	return f.failAll
}

func (f *fakeRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// providerFunc adapts a function to ForecastProvider.
type providerFunc func(ctx context.Context, d models.Descriptor) (models.Forecast, error)

func (p providerFunc) GetForecast(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
	return p(ctx, d)
}

var errUpstream = errors.New("upstream down")
