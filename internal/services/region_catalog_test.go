package services

import (
	"context"
	"errors"
	"testing"

	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionCatalog_RefreshAndLabel(t *testing.T) {
	source := &fakeRegionSource{
		regions: []provisioning.Region{{Code: "sgp", Name: "Singapore"}, {Code: "tyo", Name: "Tokyo"}},
	}
	catalog := NewRegionCatalog(source, "google-cloud-platform", newTestLogger())
	assert.Equal(t, "SGP", catalog.Label("sgp"))
	assert.True(t, catalog.RefreshedAt().IsZero())

	require.NoError(t, catalog.Refresh(context.Background()))

	assert.Len(t, catalog.Regions(), 2)
	assert.Equal(t, "Singapore (SGP)", catalog.Label("sgp"))
	assert.Equal(t, "DEL", catalog.Label("del"))
	name, ok := catalog.Name("tyo")
	assert.True(t, ok)
	assert.Equal(t, "Tokyo", name)
	assert.False(t, catalog.RefreshedAt().IsZero())
}

func TestRegionCatalog_RefreshFailureKeepsPreviousList(t *testing.T) {
	source := &fakeRegionSource{
		regions: []provisioning.Region{{Code: "sgp", Name: "Singapore"}},
	}
	catalog := NewRegionCatalog(source, "gcp", newTestLogger())
	require.NoError(t, catalog.Refresh(context.Background()))

	source.err = errors.New("backend down")
	assert.Error(t, catalog.Refresh(context.Background()))
	assert.Len(t, catalog.Regions(), 1)
}

func TestRegionCatalog_Availability(t *testing.T) {
	source := &fakeRegionSource{
		availability: map[string]provisioning.Availability{
			"tyo": {Name: "Tokyo", Quota: 4, Occupied: 1, Available: 3},
			"sgp": {Name: "Singapore", Quota: 12, Occupied: 12, Available: 0},
			"del": {Name: "Delhi", Quota: 0},
		},
	}
	catalog := NewRegionCatalog(source, "gcp", newTestLogger())

	all, err := catalog.Availability(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "sgp", all[0].Code)
	assert.Equal(t, "tyo", all[1].Code)
	assert.Equal(t, 3, all[1].Available)

	// An explicit region is shown even without quota
	one, err := catalog.Availability(context.Background(), "del")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Delhi", one[0].Name)
}
