package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Status codes returned by the provisioning backend. StatusUnavailable is
// synthetic: it stands for a missing token or a failed request.
const (
	StatusUnavailable = 0
	StatusOK          = http.StatusOK
	StatusDuplicate   = 301 // Owner already holds a booking on this backend
	StatusRegionFull  = 302 // No free slot left in the region
	StatusNotFound    = http.StatusNotFound
)

// ErrTokenMissing is returned when no API token is configured
var ErrTokenMissing = errors.New("provisioning API token not configured")

// StatusError is returned by read endpoints answering with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provisioning backend returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds configuration for the Matcha provisioning client
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	WebhookURL    string // Callback the backend posts lifecycle events to
	WebhookBearer string // Bearer the backend presents on the callback
}

// MatchaClient talks to the Matcha provisioning backend
type MatchaClient struct {
	baseURL       string
	token         string
	webhookURL    string
	webhookBearer string
	client        *http.Client
	logger        *logrus.Logger
}

// NewMatchaClient creates a new provisioning client
func NewMatchaClient(config Config, logger *logrus.Logger) *MatchaClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MatchaClient{
		baseURL:       config.BaseURL,
		token:         config.Token,
		webhookURL:    config.WebhookURL,
		webhookBearer: config.WebhookBearer,
		client: &http.Client{
			Timeout: timeout,
			// 301/302 are business codes here, not redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// WebhookTarget tells the backend where to report lifecycle events
type WebhookTarget struct {
	URL    string `json:"url"`
	Bearer string `json:"bearer"`
}

// CreateBookingRequest represents the createbooking request body
type CreateBookingRequest struct {
	DiscordID  string        `json:"discordid"`
	RegionCode string        `json:"regionCode"`
	Provider   string        `json:"provider,omitempty"`
	Webhook    WebhookTarget `json:"webhook"`
}

// CreateBookingResponse represents the createbooking response body
type CreateBookingResponse struct {
	Booking struct {
		BookingID json.Number `json:"bookingID"`
	} `json:"booking"`
}

// CreateBookingResult is the coarse outcome of a createbooking call
type CreateBookingResult struct {
	StatusCode int
	BookingID  int64 // Set only when StatusCode is 200
	Body       string
}

// Region is a region offering the configured provider
type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Availability is the quota situation of one region for one provider
type Availability struct {
	Name      string `json:"name"`
	Zone      string `json:"zone"`
	Quota     int    `json:"quota"`
	Occupied  int    `json:"occupied"`
	Available int    `json:"available"`
}

type regionProvider struct {
	Provider string `json:"provider"`
	Zone     string `json:"zone"`
	Quota    int    `json:"quota"`
	Occupied int    `json:"occupied"`
}

type regionInfo struct {
	RegionName string           `json:"regionName"`
	Providers  []regionProvider `json:"providers"`
}

// ============================================================================
// BOOKINGS
// ============================================================================

// CreateBooking asks the backend to provision a server for the owner.
// Transport failures and a missing token yield StatusUnavailable together with
// the cause. A 200 whose body carries no usable bookingID keeps StatusCode 200
// and returns an error.
func (c *MatchaClient) CreateBooking(ctx context.Context, discordID, region, provider string) (CreateBookingResult, error) {
	if c.token == "" {
		return CreateBookingResult{StatusCode: StatusUnavailable}, ErrTokenMissing
	}

	payload := CreateBookingRequest{
		DiscordID:  discordID,
		RegionCode: region,
		Provider:   provider,
		Webhook: WebhookTarget{
			URL:    c.webhookURL,
			Bearer: c.webhookBearer,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return CreateBookingResult{StatusCode: StatusUnavailable}, fmt.Errorf("failed to marshal create booking request: %w", err)
	}

	status, body, err := c.post(ctx, "/v1/matcha/createbooking", jsonData)
	if err != nil {
		return CreateBookingResult{StatusCode: StatusUnavailable}, fmt.Errorf("failed to send create booking request: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status": status,
		"body":   body,
	}).Info("Create booking response")

	result := CreateBookingResult{StatusCode: status, Body: body}
	if status != StatusOK {
		return result, nil
	}

	var resp CreateBookingResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return result, fmt.Errorf("failed to parse create booking response: %w", err)
	}
	id, err := resp.Booking.BookingID.Int64()
	if err != nil || id <= 0 {
		return result, fmt.Errorf("create booking response carries no bookingID: %q", body)
	}
	result.BookingID = id
	return result, nil
}

// EndBooking asks the backend to terminate a booking. Transport failures and
// a missing token yield StatusUnavailable together with the cause.
func (c *MatchaClient) EndBooking(ctx context.Context, bookingID int64) (int, error) {
	if c.token == "" {
		return StatusUnavailable, ErrTokenMissing
	}

	path := "/v1/matcha/endbooking?id=" + url.QueryEscape(strconv.FormatInt(bookingID, 10))
	status, body, err := c.post(ctx, path, nil)
	if err != nil {
		return StatusUnavailable, fmt.Errorf("failed to send end booking request: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status":     status,
		"booking_id": bookingID,
		"body":       body,
	}).Info("End booking response")

	return status, nil
}

func (c *MatchaClient) post(ctx context.Context, path string, jsonData []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, string(body), nil
}

// ============================================================================
// REGIONS
// ============================================================================

// ListRegions returns the regions offering provider, ordered by code
func (c *MatchaClient) ListRegions(ctx context.Context, provider string) ([]Region, error) {
	regions, err := c.fetchRegions(ctx)
	if err != nil {
		return nil, err
	}

	var result []Region
	for code, info := range regions {
		for _, p := range info.Providers {
			if p.Provider == provider {
				result = append(result, Region{Code: code, Name: info.RegionName})
				break
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// ListAvailability returns quota and occupancy of provider per region code.
// A non-empty region restricts the result to that region.
func (c *MatchaClient) ListAvailability(ctx context.Context, provider, region string) (map[string]Availability, error) {
	regions, err := c.fetchRegions(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Availability)
	for code, info := range regions {
		if region != "" && code != region {
			continue
		}
		for _, p := range info.Providers {
			if p.Provider != provider {
				continue
			}
			result[code] = Availability{
				Name:      info.RegionName,
				Zone:      p.Zone,
				Quota:     p.Quota,
				Occupied:  p.Occupied,
				Available: p.Quota - p.Occupied,
			}
			break
		}
	}
	return result, nil
}

func (c *MatchaClient) fetchRegions(ctx context.Context) (map[string]regionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/resources/region/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create region list request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch regions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read region list: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var regions map[string]regionInfo
	if err := json.Unmarshal(body, &regions); err != nil {
		return nil, fmt.Errorf("failed to parse region list: %w", err)
	}
	return regions, nil
}
