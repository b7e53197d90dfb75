// README: Google Maps client used to geocode ride addresses and estimate driving routes.
package maps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

var (
	ErrAddressNotFound = apperr.Validation("address_not_found", "address could not be located")
	ErrNoRoute         = apperr.Upstream("no_route", "no driving route found")
)

// Client wraps the Maps Geocoding and Directions APIs.
type Client struct {
	client *maps.Client
	region string
}

// NewClient creates a Client biased to region (a ccTLD such as "pk").
// Extra options are passed to the underlying maps client.
func NewClient(apiKey, region string, opts ...maps.ClientOption) (*Client, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Client{client: client, region: region}, nil
}

// Geocode resolves address to the coordinates of the best match.
func (c *Client) Geocode(ctx context.Context, address string) (types.Point, error) {
	results, err := c.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Region:   c.region,
		Language: "en",
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, ErrAddressNotFound
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// Estimate returns the driving distance in kilometres and the duration of
// the first suggested route.
func (c *Client) Estimate(ctx context.Context, from, to types.Point) (float64, time.Duration, error) {
	routes, _, err := c.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      c.region,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, ErrNoRoute
	}
	leg := routes[0].Legs[0]
	return float64(leg.Distance.Meters) / 1000, leg.Duration, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
