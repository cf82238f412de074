package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
)

// Read-only check of the provisioning backend: lists the regions and the
// availability the bot would show, without creating any booking.
func main() {
	var provider, region string
	flag.StringVar(&provider, "provider", "", "provider to query (defaults to PROVIDER)")
	flag.StringVar(&region, "region", "", "limit availability to one region code")
	flag.Parse()

	_ = godotenv.Load()

	baseURL := strings.TrimRight(os.Getenv("MATCHA_API_URL"), "/")
	if baseURL == "" {
		log.Fatal("MATCHA_API_URL is not set")
	}
	if provider == "" {
		provider = os.Getenv("PROVIDER")
	}
	if provider == "" {
		log.Fatal("PROVIDER is not set and -provider was not provided")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := provisioning.NewMatchaClient(provisioning.Config{
		BaseURL: baseURL,
		Token:   os.Getenv("MATCHA_API_TOKEN"),
		Timeout: 15 * time.Second,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Probing %s for provider %q\n\n", baseURL, provider)

	catalog := services.NewRegionCatalog(client, provider, logger)
	if err := catalog.Refresh(ctx); err != nil {
		log.Fatalf("Region list failed: %v", err)
	}

	regions := catalog.Regions()
	fmt.Printf("Regions (%d):\n", len(regions))
	for _, r := range regions {
		fmt.Printf("  %s\n", catalog.Label(r.Code))
	}

	availability, err := catalog.Availability(ctx, region)
	if err != nil {
		log.Fatalf("Availability failed: %v", err)
	}

	fmt.Println("\nAvailability:")
	for _, a := range availability {
		fmt.Printf("  %-6s %-24s %d/%d available (zone %s)\n", a.Code, a.Name, a.Available, a.Quota, a.Zone)
	}
}
