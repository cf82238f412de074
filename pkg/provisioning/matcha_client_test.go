package provisioning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionListBody = `{
	"sgp": {"regionName": "Singapore", "providers": [
		{"provider": "google-cloud-platform", "zone": "asia-southeast1", "quota": 12, "occupied": 3},
		{"provider": "aws", "zone": "ap-southeast-1", "quota": 2, "occupied": 0}
	]},
	"tyo": {"regionName": "Tokyo", "providers": [
		{"provider": "google-cloud-platform", "zone": "asia-northeast1", "quota": 4, "occupied": 4}
	]},
	"syd": {"regionName": "Sydney", "providers": [
		{"provider": "aws", "zone": "ap-southeast-2", "quota": 6, "occupied": 1}
	]}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *MatchaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewMatchaClient(Config{
		BaseURL:       server.URL,
		Token:         token,
		Timeout:       5 * time.Second,
		WebhookURL:    "https://bot.example.com/webhook",
		WebhookBearer: "hook-secret",
	}, logger)
}

func TestCreateBooking_Success(t *testing.T) {
	var got CreateBookingRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/matcha/createbooking", r.URL.Path)
		assert.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"booking":{"bookingID":4711}}`))
	}, "api-token")

	result, err := client.CreateBooking(context.Background(), "108840458347610112", "sgp", "google-cloud-platform")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.StatusCode)
	assert.Equal(t, int64(4711), result.BookingID)
	assert.Equal(t, "108840458347610112", got.DiscordID)
	assert.Equal(t, "sgp", got.RegionCode)
	assert.Equal(t, "google-cloud-platform", got.Provider)
	assert.Equal(t, "https://bot.example.com/webhook", got.Webhook.URL)
	assert.Equal(t, "hook-secret", got.Webhook.Bearer)
}

func TestCreateBooking_OmitsEmptyProvider(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, ok := raw["provider"]
		assert.False(t, ok)
		w.WriteHeader(StatusRegionFull)
	}, "api-token")

	result, err := client.CreateBooking(context.Background(), "1", "sgp", "")
	require.NoError(t, err)
	assert.Equal(t, StatusRegionFull, result.StatusCode)
}

func TestCreateBooking_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"duplicate", StatusDuplicate},
		{"region full", StatusRegionFull},
		{"internal error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, "api-token")

			result, err := client.CreateBooking(context.Background(), "1", "sgp", "gcp")
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.StatusCode)
			assert.Zero(t, result.BookingID)
		})
	}
}

func TestCreateBooking_MissingBookingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"booking":{}}`))
	}, "api-token")

	result, err := client.CreateBooking(context.Background(), "1", "sgp", "gcp")
	require.Error(t, err)
	assert.Equal(t, StatusOK, result.StatusCode)
}

func TestCreateBooking_NoToken(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	result, err := client.CreateBooking(context.Background(), "1", "sgp", "gcp")
	assert.ErrorIs(t, err, ErrTokenMissing)
	assert.Equal(t, StatusUnavailable, result.StatusCode)
	assert.False(t, called)
}

func TestCreateBooking_NetworkFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, "api-token")
	client.baseURL = "http://127.0.0.1:1"

	result, err := client.CreateBooking(context.Background(), "1", "sgp", "gcp")
	assert.Error(t, err)
	assert.Equal(t, StatusUnavailable, result.StatusCode)
}

func TestEndBooking(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"success", http.StatusOK},
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/matcha/endbooking", r.URL.Path)
				assert.Equal(t, "4711", r.URL.Query().Get("id"))
				w.WriteHeader(tt.status)
			}, "api-token")

			status, err := client.EndBooking(context.Background(), 4711)
			require.NoError(t, err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestEndBooking_NoToken(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	status, err := client.EndBooking(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTokenMissing)
	assert.Equal(t, StatusUnavailable, status)
	assert.False(t, called)
}

func TestListRegions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/resources/region/list", r.URL.Path)
		_, _ = w.Write([]byte(regionListBody))
	}, "")

	regions, err := client.ListRegions(context.Background(), "google-cloud-platform")
	require.NoError(t, err)
	assert.Equal(t, []Region{
		{Code: "sgp", Name: "Singapore"},
		{Code: "tyo", Name: "Tokyo"},
	}, regions)
}

func TestListAvailability(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(regionListBody))
	}, "")

	t.Run("all regions", func(t *testing.T) {
		availability, err := client.ListAvailability(context.Background(), "google-cloud-platform", "")
		require.NoError(t, err)
		require.Len(t, availability, 2)
		assert.Equal(t, Availability{Name: "Singapore", Zone: "asia-southeast1", Quota: 12, Occupied: 3, Available: 9}, availability["sgp"])
		assert.Equal(t, 0, availability["tyo"].Available)
	})

	t.Run("single region", func(t *testing.T) {
		availability, err := client.ListAvailability(context.Background(), "aws", "syd")
		require.NoError(t, err)
		require.Len(t, availability, 1)
		assert.Equal(t, 5, availability["syd"].Available)
	})
}

func TestListRegions_BackendError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}, "")

	_, err := client.ListRegions(context.Background(), "gcp")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}
