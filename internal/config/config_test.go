package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CARPOOL_FIREBASE_PROJECT_ID", "carpool-dev")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5.0, cfg.Search.RadiusKm)
	assert.Equal(t, 15.0, cfg.Search.DestinationRadiusKm)
	assert.Equal(t, "carpool:notifications", cfg.Notify.QueueKey)
	assert.Equal(t, []string{"ride_cancelled"}, cfg.Notify.SMSOnEventType)
	assert.Equal(t, "pkr", cfg.Stripe.Currency)
	assert.Equal(t, 10*time.Minute, cfg.Location.PositionTTL)
	assert.Equal(t, "pk", cfg.Maps.Region)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CARPOOL_FIREBASE_PROJECT_ID", "carpool-dev")
	t.Setenv("CARPOOL_SEARCH_RADIUS_KM", "2.5")
	t.Setenv("CARPOOL_NOTIFY_MAX_ELAPSED", "30s")
	t.Setenv("CARPOOL_NOTIFY_SMS_EVENTS", "ride_cancelled, booking_cancelled ,")
	t.Setenv("CARPOOL_REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Search.RadiusKm)
	assert.Equal(t, 30*time.Second, cfg.Notify.MaxElapsed)
	assert.Equal(t, []string{"ride_cancelled", "booking_cancelled"}, cfg.Notify.SMSOnEventType)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestLoad_MissingFirebaseProject(t *testing.T) {
	t.Setenv("CARPOOL_FIREBASE_PROJECT_ID", "")
	_, err := Load()
	assert.ErrorContains(t, err, "CARPOOL_FIREBASE_PROJECT_ID")
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("CARPOOL_FIREBASE_PROJECT_ID", "carpool-dev")
	t.Setenv("CARPOOL_NOTIFY_WORKERS", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "CARPOOL_NOTIFY_WORKERS")
}

func TestLoad_ShortLocationTTL(t *testing.T) {
	t.Setenv("CARPOOL_FIREBASE_PROJECT_ID", "carpool-dev")
	t.Setenv("CARPOOL_LOCATION_TTL", "500ms")
	_, err := Load()
	assert.ErrorContains(t, err, "CARPOOL_LOCATION_TTL")
}

func TestLoad_MapsRegion(t *testing.T) {
	t.Setenv("CARPOOL_FIREBASE_PROJECT_ID", "carpool-dev")
	t.Setenv("CARPOOL_MAPS_REGION", "AE")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ae", cfg.Maps.Region)

	t.Setenv("CARPOOL_MAPS_REGION", "uae")
	_, err = Load()
	assert.ErrorContains(t, err, "CARPOOL_MAPS_REGION")
}
