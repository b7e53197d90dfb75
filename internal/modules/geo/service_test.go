package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/apperr"
	"carpool/internal/config"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type fakeSource struct {
	rides []ride.Ride
	got   ride.AreaQuery
	err   error
}

func (f *fakeSource) WithinBounds(_ context.Context, q ride.AreaQuery) ([]ride.Ride, error) {
	f.got = q
	return f.rides, f.err
}

var center = types.Point{Lat: 24.86, Lng: 67.01}

// northOf returns a point km kilometres north of p.
func northOf(p types.Point, km float64) types.Point {
	return types.Point{Lat: p.Lat + km/111.195, Lng: p.Lng}
}

func mkRide(id string, origin, dest types.Point) ride.Ride {
	return ride.Ride{
		ID:             types.ID(id),
		DriverID:       "driver-" + types.ID(id),
		Origin:         types.Place{Address: id + " origin", Point: origin},
		Destination:    types.Place{Address: id + " destination", Point: dest},
		TotalSeats:     3,
		AvailableSeats: 3,
		Status:         ride.StatusOpen,
	}
}

func newTestService(src Source) *Service {
	log, _ := test.NewNullLogger()
	return NewService(src, config.SearchConfig{RadiusKm: 5, DestinationRadiusKm: 15, MaxResults: 50}, log)
}

func ids(results []Result) []types.ID {
	out := make([]types.ID, len(results))
	for i, r := range results {
		out[i] = r.Ride.ID
	}
	return out
}

func TestSearch_FiltersByRadiusAndSortsByDistance(t *testing.T) {
	dest := types.Point{Lat: 24.95, Lng: 67.10}
	src := &fakeSource{rides: []ride.Ride{
		mkRide("r2", northOf(center, 4), dest),
		mkRide("r3", northOf(center, 8), dest),
		mkRide("r1", northOf(center, 1), dest),
	}}

	got, err := newTestService(src).Search(context.Background(), Query{Origin: center, Searcher: "me"})
	require.NoError(t, err)

	assert.Equal(t, []types.ID{"r1", "r2"}, ids(got))
	assert.InDelta(t, 1.0, got[0].OriginDistanceKm, 0.01)
	assert.Nil(t, got[0].DestinationDistanceKm)

	assert.Equal(t, 1, src.got.MinSeats)
	assert.Equal(t, types.ID("me"), src.got.ExcludeDriver)
	assert.Equal(t, 200, src.got.Limit)
	assert.False(t, src.got.DepartAfter.IsZero())
	require.NotNil(t, src.got.Near)
	assert.Equal(t, center, *src.got.Near)
	assert.Nil(t, src.got.NearDestination)
}

func TestSearch_DestinationRadiusAndCombinedOrder(t *testing.T) {
	dest := types.Point{Lat: 24.95, Lng: 67.10}
	src := &fakeSource{rides: []ride.Ride{
		mkRide("near-origin-far-dest", northOf(center, 1), northOf(dest, 10)),
		mkRide("mid-origin-exact-dest", northOf(center, 4), dest),
		mkRide("dest-out-of-range", northOf(center, 0.5), northOf(dest, 20)),
	}}

	got, err := newTestService(src).Search(context.Background(), Query{Origin: center, Destination: &dest})
	require.NoError(t, err)

	assert.Equal(t, []types.ID{"mid-origin-exact-dest", "near-origin-far-dest"}, ids(got))
	require.NotNil(t, got[0].DestinationDistanceKm)
	assert.InDelta(t, 0, *got[0].DestinationDistanceKm, 0.01)
}

func TestSearch_LimitTrimsAfterSort(t *testing.T) {
	src := &fakeSource{rides: []ride.Ride{
		mkRide("c", northOf(center, 3), center),
		mkRide("a", northOf(center, 1), center),
		mkRide("b", northOf(center, 2), center),
	}}
	got, err := newTestService(src).Search(context.Background(), Query{Origin: center, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"a", "b"}, ids(got))
}

func TestSearch_Validation(t *testing.T) {
	svc := newTestService(&fakeSource{})
	past := time.Now().Add(-time.Hour)
	badDest := types.Point{Lat: 91, Lng: 0}

	tests := []struct {
		name  string
		q     Query
		field string
	}{
		{"missing origin", Query{}, "origin"},
		{"radius too large", Query{Origin: center, RadiusKm: 500}, "radius_km"},
		{"negative seats", Query{Origin: center, Seats: -1}, "seats"},
		{"invalid destination", Query{Origin: center, Destination: &badDest}, "destination"},
		{"window ends before now", Query{Origin: center, DepartBefore: &past}, "depart_before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tt.q)
			require.ErrorIs(t, err, ErrBadQuery)
			assert.Contains(t, apperr.From(err).Fields, tt.field)
		})
	}
}

func TestSearch_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	_, err := newTestService(&fakeSource{err: boom}).Search(context.Background(), Query{Origin: center})
	assert.ErrorIs(t, err, boom)
}
