package attendance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/geo"
	"rollcall/internal/schedule"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*User // by email
	classes map[string]*Class
	failOn  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*User),
		classes: make(map[string]*Class),
	}
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "user" {
		return nil, errors.New("db down")
	}
	if usr, ok := f.users[email]; ok {
		cp := *usr
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) FindClassByID(_ context.Context, id string) (*Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cls, ok := f.classes[id]; ok {
		cp := *cls
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) UpdateUserLocation(_ context.Context, userID string, pos geo.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, usr := range f.users {
		if usr.ID == userID {
			usr.LastLocation = pos
			return nil
		}
	}
	return errors.New("no such user")
}

func (f *fakeStore) SetUserPresent(_ context.Context, userID string, present bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, usr := range f.users {
		if usr.ID == userID {
			usr.Present = present
			return nil
		}
	}
	return errors.New("no such user")
}

var (
	classLoc = geo.Point{Latitude: 37.7662739142613, Longitude: -121.91465778737411}
	// refNow is a Monday at 10:01 local to the class schedule below.
	refNow = time.Date(2024, 11, 4, 10, 1, 0, 0, time.UTC)
)

func setup(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	st.users["jane@school.test"] = &User{ID: "u-1", Email: "jane@school.test"}
	st.classes["c-1"] = &Class{
		ID:       "c-1",
		Name:     "Mathematics",
		Location: classLoc,
		Timings: []schedule.TimingEntry{
			{Day: "Monday", Start: "10:00AM", End: "11:00AM"},
			{Day: "Wednesday", Start: "10:00AM", End: "11:00AM"},
		},
	}

	svc := NewService(st, Config{})
	svc.now = func() time.Time { return refNow }
	return svc, st
}

func TestMarkSuccess(t *testing.T) {
	svc, st := setup(t)

	res, err := svc.Mark(context.Background(), "jane@school.test", "c-1", classLoc)
	require.NoError(t, err)
	assert.True(t, res.Marked)
	assert.Empty(t, res.Reason)
	assert.True(t, st.users["jane@school.test"].Present)
	assert.Equal(t, classLoc, st.users["jane@school.test"].LastLocation)
}

func TestMarkOutsideGeofenceStillRecordsLocation(t *testing.T) {
	svc, st := setup(t)

	// ~0.003 degrees of latitude is roughly 1100 ft.
	far := geo.Point{Latitude: classLoc.Latitude + 0.003, Longitude: classLoc.Longitude}
	res, err := svc.Mark(context.Background(), "jane@school.test", "c-1", far)
	require.NoError(t, err)
	assert.False(t, res.Marked)
	assert.Equal(t, ReasonOutsideGeofence, res.Reason)
	assert.Greater(t, res.DistanceFeet, 1000.0)

	usr := st.users["jane@school.test"]
	assert.False(t, usr.Present)
	assert.Equal(t, far, usr.LastLocation)
}

func TestMarkOutsideTimeWindow(t *testing.T) {
	svc, st := setup(t)
	svc.now = func() time.Time { return refNow.Add(-time.Hour) }

	res, err := svc.Mark(context.Background(), "jane@school.test", "c-1", classLoc)
	require.NoError(t, err)
	assert.False(t, res.Marked)
	assert.Equal(t, ReasonOutsideTimeWindow, res.Reason)
	// Location is written before the admission checks.
	assert.Equal(t, classLoc, st.users["jane@school.test"].LastLocation)
}

func TestMarkNotFound(t *testing.T) {
	svc, _ := setup(t)

	res, err := svc.Mark(context.Background(), "nobody@school.test", "c-1", classLoc)
	require.NoError(t, err)
	assert.Equal(t, ReasonUserNotFound, res.Reason)

	res, err = svc.Mark(context.Background(), "jane@school.test", "c-404", classLoc)
	require.NoError(t, err)
	assert.Equal(t, ReasonClassNotFound, res.Reason)
}

func TestMarkDeniedGeolocationFailsClosed(t *testing.T) {
	svc, st := setup(t)

	denied := geo.Point{Latitude: math.NaN(), Longitude: math.NaN()}
	res, err := svc.Mark(context.Background(), "jane@school.test", "c-1", denied)
	require.NoError(t, err)
	assert.False(t, res.Marked)
	assert.Equal(t, ReasonOutsideGeofence, res.Reason)
	// An invalid position is never persisted.
	assert.Equal(t, geo.Point{}, st.users["jane@school.test"].LastLocation)
}

func TestMarkMalformedTimingSkipped(t *testing.T) {
	svc, st := setup(t)
	st.classes["c-1"].Timings = []schedule.TimingEntry{
		{Day: "Funday", Start: "10:00AM"},
		{Day: "Monday", Start: "10:00AM"},
	}

	res, err := svc.Mark(context.Background(), "jane@school.test", "c-1", classLoc)
	require.NoError(t, err)
	assert.True(t, res.Marked)
}

func TestGeofenceBoundaryInclusive(t *testing.T) {
	st := newFakeStore()
	near := geo.Point{Latitude: classLoc.Latitude + 0.00005, Longitude: classLoc.Longitude}
	d := geo.Distance(near, classLoc)

	svc := NewService(st, Config{GeofenceRadiusFeet: d})
	ok, got := svc.WithinGeofence(near, classLoc)
	assert.True(t, ok, "distance equal to radius must admit")
	assert.InDelta(t, d, got, 1e-9)

	svc = NewService(st, Config{GeofenceRadiusFeet: d - 0.1})
	ok, _ = svc.WithinGeofence(near, classLoc)
	assert.False(t, ok, "distance past radius must reject")
}

func TestMarkInfrastructureError(t *testing.T) {
	svc, st := setup(t)
	st.failOn = "user"

	_, err := svc.Mark(context.Background(), "jane@school.test", "c-1", classLoc)
	assert.Error(t, err)
}

func TestMarkConcurrentIdempotent(t *testing.T) {
	svc, st := setup(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Mark(context.Background(), "jane@school.test", "c-1", classLoc)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, st.users["jane@school.test"].Present)
}
