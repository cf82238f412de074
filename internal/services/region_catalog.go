package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
)

// RegionSource lists regions and their availability for a provider
type RegionSource interface {
	ListRegions(ctx context.Context, provider string) ([]provisioning.Region, error)
	ListAvailability(ctx context.Context, provider, region string) (map[string]provisioning.Availability, error)
}

// RegionAvailability is the availability of one region, tagged with its code
type RegionAvailability struct {
	Code string `json:"code"`
	provisioning.Availability
}

// RegionCatalog caches the regions offering the configured provider
type RegionCatalog struct {
	source   RegionSource
	provider string
	logger   *logrus.Logger

	mu          sync.RWMutex
	regions     []provisioning.Region
	names       map[string]string
	refreshedAt time.Time
}

// NewRegionCatalog creates an empty catalog; call Refresh to populate it
func NewRegionCatalog(source RegionSource, provider string, logger *logrus.Logger) *RegionCatalog {
	return &RegionCatalog{
		source:   source,
		provider: provider,
		logger:   logger,
		names:    make(map[string]string),
	}
}

// Refresh reloads the region list. On failure the previous list is kept.
func (c *RegionCatalog) Refresh(ctx context.Context) error {
	regions, err := c.source.ListRegions(ctx, c.provider)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"provider": c.provider,
			"error":    err.Error(),
		}).Error("Failed to refresh bookable regions")
		return fmt.Errorf("failed to refresh regions: %w", err)
	}

	names := make(map[string]string, len(regions))
	for _, r := range regions {
		names[r.Code] = r.Name
	}

	c.mu.Lock()
	c.regions = regions
	c.names = names
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"provider": c.provider,
		"regions":  len(regions),
	}).Info("Bookable regions refreshed")
	return nil
}

// Regions returns a copy of the cached region list
func (c *RegionCatalog) Regions() []provisioning.Region {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]provisioning.Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Name returns the full name of a region code
func (c *RegionCatalog) Name(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[code]
	return name, ok
}

// Label renders a region as "Singapore (SGP)", or just "SGP" when unknown
func (c *RegionCatalog) Label(code string) string {
	upper := strings.ToUpper(code)
	if name, ok := c.Name(code); ok && name != "" {
		return fmt.Sprintf("%s (%s)", name, upper)
	}
	return upper
}

// RefreshedAt returns when the list was last loaded
func (c *RegionCatalog) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Availability returns live availability ordered by region code. Without a
// region filter, regions with zero quota are left out.
func (c *RegionCatalog) Availability(ctx context.Context, region string) ([]RegionAvailability, error) {
	data, err := c.source.ListAvailability(ctx, c.provider, region)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}

	out := make([]RegionAvailability, 0, len(data))
	for code, a := range data {
		if region == "" && a.Quota == 0 {
			continue
		}
		out = append(out, RegionAvailability{Code: code, Availability: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
