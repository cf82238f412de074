package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matcha-bookable/bookable-bot/internal/database"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeProvisioner answers createbooking/endbooking from canned values
type fakeProvisioner struct {
	mu          sync.Mutex
	createCode  int
	createErr   error
	nextID      int64
	endCode     int
	endErr      error
	createCalls int
	endCalls    []int64

	// Optional hook run inside CreateBooking, before it returns
	onCreate func()
	// Optional gate CreateBooking blocks on until closed
	gate chan struct{}
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{createCode: provisioning.StatusOK, endCode: provisioning.StatusOK, nextID: 42}
}

func (p *fakeProvisioner) CreateBooking(ctx context.Context, discordID, region, provider string) (provisioning.CreateBookingResult, error) {
	if p.gate != nil {
		<-p.gate
	}
	if p.onCreate != nil {
		p.onCreate()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	result := provisioning.CreateBookingResult{StatusCode: p.createCode}
	if p.createCode == provisioning.StatusOK && p.createErr == nil {
		result.BookingID = p.nextID
		p.nextID++
	}
	return result, p.createErr
}

func (p *fakeProvisioner) EndBooking(ctx context.Context, bookingID int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endCalls = append(p.endCalls, bookingID)
	return p.endCode, p.endErr
}

func (p *fakeProvisioner) creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls
}

func (p *fakeProvisioner) ends() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.endCalls...)
}

type sentNotice struct {
	target string // "direct", "channel" or "message"
	notice models.Notice
	handle models.MessageHandle
}

// fakeNotifier records every notice
type fakeNotifier struct {
	mu        sync.Mutex
	probeErr  error
	directErr error
	sent      []sentNotice
}

func (n *fakeNotifier) ProbeDirect(ctx context.Context, owner models.OwnerID) error {
	return n.probeErr
}

func (n *fakeNotifier) SendDirect(ctx context.Context, owner models.OwnerID, notice models.Notice) error {
	n.record("direct", notice, models.MessageHandle{})
	return n.directErr
}

func (n *fakeNotifier) SendToChannel(ctx context.Context, notice models.Notice) error {
	n.record("channel", notice, models.MessageHandle{})
	return nil
}

func (n *fakeNotifier) UpdateMessage(ctx context.Context, handle models.MessageHandle, notice models.Notice) error {
	n.record("message", notice, handle)
	return nil
}

func (n *fakeNotifier) record(target string, notice models.Notice, handle models.MessageHandle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{target: target, notice: notice, handle: handle})
}

func (n *fakeNotifier) kinds(target string) []models.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.NoticeKind
	for _, s := range n.sent {
		if s.target == target {
			out = append(out, s.notice.Kind)
		}
	}
	return out
}

func (n *fakeNotifier) last(target string) (sentNotice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].target == target {
			return n.sent[i], true
		}
	}
	return sentNotice{}, false
}

// recordingAuditor keeps audit events in memory
type recordingAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *recordingAuditor) Record(ctx context.Context, event AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) actions() []AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditAction, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

// fakeRegionSource serves a fixed region table
type fakeRegionSource struct {
	regions      []provisioning.Region
	availability map[string]provisioning.Availability
	err          error
}

func (s *fakeRegionSource) ListRegions(ctx context.Context, provider string) ([]provisioning.Region, error) {
	return s.regions, s.err
}

func (s *fakeRegionSource) ListAvailability(ctx context.Context, provider, region string) (map[string]provisioning.Availability, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]provisioning.Availability)
	for code, a := range s.availability {
		if region == "" || code == region {
			out[code] = a
		}
	}
	return out, nil
}

// coordinatorFixture wires a coordinator and a reconciler over shared state
type coordinatorFixture struct {
	store       *database.BookingStore
	ledger      *CapacityLedger
	provisioner *fakeProvisioner
	notifier    *fakeNotifier
	auditor     *recordingAuditor
	catalog     *RegionCatalog
	coordinator *BookingCoordinator
	reconciler  *WebhookReconciler
}

func newCoordinatorFixture(t *testing.T, ceiling int, startTimeout time.Duration) *coordinatorFixture {
	t.Helper()
	logger := newTestLogger()

	f := &coordinatorFixture{
		store:       database.NewBookingStore(),
		ledger:      NewCapacityLedger(ceiling),
		provisioner: newFakeProvisioner(),
		notifier:    &fakeNotifier{},
		auditor:     &recordingAuditor{},
	}
	f.catalog = NewRegionCatalog(&fakeRegionSource{
		regions: []provisioning.Region{{Code: "sgp", Name: "Singapore"}, {Code: "tyo", Name: "Tokyo"}},
	}, "google-cloud-platform", logger)
	if err := f.catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh catalog: %v", err)
	}

	f.coordinator = NewBookingCoordinator(f.store, f.ledger, f.provisioner, f.notifier, f.catalog, f.auditor, BookingCoordinatorConfig{
		Provider:     "google-cloud-platform",
		PollInterval: time.Hour, // Wake-ups must come from the store, not the ticker
		StartTimeout: startTimeout,
	}, logger)
	f.reconciler = NewWebhookReconciler(f.store, f.ledger, f.notifier, f.catalog, f.auditor, logger)
	return f
}

func startedEvent(id models.BookingID) models.WebhookEvent {
	return models.WebhookEvent{
		BookingID: id,
		Status:    models.WebhookStatusStarted,
		Details: &models.ServerDetails{
			Address:    "203.0.113.5",
			Port:       "27015",
			STVPort:    "27020",
			SDRIPv4:    "169.254.1.1",
			SDRPort:    "41000",
			SVPassword: "hunter2",
		},
		Instance: "matcha-sgp-1",
	}
}

func emptiedEvent(id models.BookingID) models.WebhookEvent {
	return models.WebhookEvent{BookingID: id, Status: "emptied"}
}

// waitFor polls cond until it holds or the timeout passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
