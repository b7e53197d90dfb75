// README: Ride search: bounding-box prefilter, exact distance filter and ordering.
package geo

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"carpool/internal/apperr"
	"carpool/internal/config"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

// MaxRadiusKm caps caller-supplied search radii.
const MaxRadiusKm = 200.0

var ErrBadQuery = apperr.Validation("invalid_search", "invalid search request")

// Source returns bookable rides whose origin lies inside a rectangle.
type Source interface {
	WithinBounds(ctx context.Context, q ride.AreaQuery) ([]ride.Ride, error)
}

type Query struct {
	Origin              types.Point
	RadiusKm            float64
	Destination         *types.Point
	DestinationRadiusKm float64
	Seats               int
	DepartAfter         time.Time
	DepartBefore        *time.Time
	Prefs               ride.PreferenceFilter
	// Searcher is excluded from results so drivers do not see their own rides.
	Searcher types.ID
	Limit    int
}

type Result struct {
	Ride                  ride.Ride `json:"ride"`
	OriginDistanceKm      float64   `json:"origin_distance_km"`
	DestinationDistanceKm *float64  `json:"destination_distance_km,omitempty"`
}

type Service struct {
	source Source
	cfg    config.SearchConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(source Source, cfg config.SearchConfig, log logrus.FieldLogger) *Service {
	return &Service{source: source, cfg: cfg, log: log, now: time.Now}
}

// Search returns open rides departing from within the radius of q.Origin,
// nearest first. With a destination, rides must also end within the
// destination radius and are ordered by combined distance.
func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := s.normalize(&q); err != nil {
		return nil, err
	}

	candidates, err := s.source.WithinBounds(ctx, ride.AreaQuery{
		Bounds:          BoundingBox(q.Origin, q.RadiusKm),
		MinSeats:        q.Seats,
		DepartAfter:     q.DepartAfter,
		DepartBefore:    q.DepartBefore,
		ExcludeDriver:   q.Searcher,
		Prefs:           q.Prefs,
		Near:            &q.Origin,
		NearDestination: q.Destination,
		// The box is wider than the circle; fetch extra so trimming by
		// distance still fills the page.
		Limit: q.Limit * 4,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, r := range candidates {
		od := HaversineKm(q.Origin, r.Origin.Point)
		if od > q.RadiusKm {
			continue
		}
		res := Result{Ride: r, OriginDistanceKm: Round2(od)}
		if q.Destination != nil {
			dd := HaversineKm(*q.Destination, r.Destination.Point)
			if dd > q.DestinationRadiusKm {
				continue
			}
			dd = Round2(dd)
			res.DestinationDistanceKm = &dd
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].rank() < results[j].rank()
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	s.log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"results":    len(results),
		"radius_km":  q.RadiusKm,
	}).Debug("ride search")
	return results, nil
}

func (r Result) rank() float64 {
	if r.DestinationDistanceKm != nil {
		return r.OriginDistanceKm + *r.DestinationDistanceKm
	}
	return r.OriginDistanceKm
}

func (s *Service) normalize(q *Query) error {
	if !q.Origin.Valid() {
		return ErrBadQuery.WithField("origin", "valid origin coordinates are required")
	}
	if q.Destination != nil && !q.Destination.Valid() {
		return ErrBadQuery.WithField("destination", "invalid destination coordinates")
	}
	if q.RadiusKm == 0 {
		q.RadiusKm = s.cfg.RadiusKm
	}
	if q.RadiusKm < 0 || q.RadiusKm > MaxRadiusKm {
		return ErrBadQuery.WithField("radius_km", "must be between 0 and 200")
	}
	if q.DestinationRadiusKm == 0 {
		q.DestinationRadiusKm = s.cfg.DestinationRadiusKm
	}
	if q.DestinationRadiusKm < 0 || q.DestinationRadiusKm > MaxRadiusKm {
		return ErrBadQuery.WithField("destination_radius_km", "must be between 0 and 200")
	}
	if q.Seats == 0 {
		q.Seats = 1
	}
	if q.Seats < 1 || q.Seats > ride.MaxSeats {
		return ErrBadQuery.WithField("seats", "must be between 1 and 8")
	}
	now := s.now()
	if q.DepartAfter.Before(now) {
		q.DepartAfter = now
	}
	if q.DepartBefore != nil && !q.DepartBefore.After(q.DepartAfter) {
		return ErrBadQuery.WithField("depart_before", "must be after depart_after")
	}
	if q.Limit <= 0 || q.Limit > s.cfg.MaxResults {
		q.Limit = s.cfg.MaxResults
	}
	return nil
}
