// README: Router tests: auth wiring and requests rejected before reaching storage.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/modules/ride"
)

type stubTokenVerifier struct {
	token *infra.FirebaseToken
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	if raw != "good" {
		return nil, assert.AnError
	}
	return s.token, nil
}

func buildTestRouter(role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	// Services without storage are safe here: every request below is
	// rejected before any store is touched.
	return httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    ride.NewService(nil, nil, nil, nil, nil, nil, log),
		Verifier: &stubTokenVerifier{token: &infra.FirebaseToken{UID: "user_1", Claims: claims}},
		Log:      log,
	})
}

func doRequest(r http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	w := doRequest(buildTestRouter(""), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAPIRequiresToken(t *testing.T) {
	r := buildTestRouter("driver")
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/api/chat/presets", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/api/chat/presets", nil, "bad").Code)
}

func TestCreateRide_PassengerForbidden(t *testing.T) {
	w := doRequest(buildTestRouter("passenger"), http.MethodPost, "/api/rides", map[string]any{
		"from_address":   "Liberty Market",
		"to_address":     "DHA Phase 5",
		"from_lat":       31.5102,
		"from_lng":       74.3441,
		"to_lat":         31.4697,
		"to_lng":         74.4085,
		"departure_time": "2030-01-02T08:00:00Z",
		"total_seats":    3,
		"price":          50000,
	}, "good")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "driver_role_required", errorCode(t, w))
}

func TestCreateRide_ValidationFields(t *testing.T) {
	w := doRequest(buildTestRouter("driver"), http.MethodPost, "/api/rides", map[string]any{
		"origin_address": "Liberty Market",
		"seats":          12,
	}, "good")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error struct {
			Code   string            `json:"code"`
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body.Error.Code)
	assert.Equal(t, "is required", body.Error.Fields["destination_address"])
	assert.Equal(t, "must be at most 8", body.Error.Fields["seats"])
}

func TestBodyAndPathRejections(t *testing.T) {
	r := buildTestRouter("passenger")

	w := doRequest(r, http.MethodPost, "/api/rides/abc/bookings", map[string]any{"seats": 0}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/bookings/b1/confirm", map[string]any{"payment_method": "card"}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/bookings/b1/confirm", map[string]any{"method": "cash", "idempotency_key": "retry #2"}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPut, "/api/rides/r1/bids", map[string]any{"bid_amount": "lots", "seats": 1}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/bookings/b1/rate-driver", map[string]any{"rating": 6}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPut, "/api/me/contact", map[string]any{"phone_number": "0300 1234567"}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/rides/r1/messages", map[string]any{}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_QueryValidation(t *testing.T) {
	r := buildTestRouter("passenger")

	w := doRequest(r, http.MethodGet, "/api/rides/search?radius_km=5", nil, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/rides/search?pickup_lat=31.5&pickup_lng=74.3&to_lat=31.4", nil, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/rides/search?pickup_lat=31.5&pickup_lng=74.3&radius_km=500", nil, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatPresets(t *testing.T) {
	w := doRequest(buildTestRouter("driver"), http.MethodGet, "/api/chat/presets", nil, "good")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Side    string   `json:"side"`
		Presets []string `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "driver", body.Side)
	assert.Contains(t, body.Presets, "Trip is starting now")

	w = doRequest(buildTestRouter("driver"), http.MethodGet, "/api/chat/presets?side=passenger", nil, "good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Running late")

	w = doRequest(buildTestRouter("driver"), http.MethodGet, "/api/chat/presets?side=admin", nil, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLocationUpdate_Validation(t *testing.T) {
	r := buildTestRouter("driver")

	w := doRequest(r, http.MethodPut, "/api/rides/r1/location", map[string]any{"latitude": "31.5", "longitude": "74.3"}, "good")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error struct {
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "is required", body.Error.Fields["seq"])
	assert.NotContains(t, body.Error.Fields, "lat")

	w = doRequest(r, http.MethodPut, "/api/rides/r1/location", map[string]any{"lat": 95, "lng": 74.3, "seq": 1}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPut, "/api/rides/r1/location", map[string]any{"lat": 31.5, "lon": 74.3, "longitude": 70, "seq": 1}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "conflicting_fields", errorCode(t, w))
}

func TestOversizedBodyRejected(t *testing.T) {
	w := doRequest(buildTestRouter("passenger"), http.MethodPost, "/api/rides/r1/messages",
		map[string]any{"text": strings.Repeat("a", 70<<10)}, "good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "body_too_large", errorCode(t, w))
}
