package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coachbook/internal/apperr"
	"coachbook/internal/external"
	"coachbook/internal/models"
	"coachbook/internal/repository"
)

// fakeStore is an in-memory BookingStore. It mirrors the conditional-write
// semantics of the SQL layer closely enough to exercise the state machines.
type fakeStore struct {
	mu           sync.Mutex
	nextID       int64
	bookings     map[int64]*models.Booking
	details      map[int64]*models.PaymentDetail
	participants map[int64]*models.Participant
	transitions  []models.StateTransition
	events       []models.PaymentEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:       1,
		bookings:     map[int64]*models.Booking{},
		details:      map[int64]*models.PaymentDetail{},
		participants: map[int64]*models.Participant{},
	}
}

func (f *fakeStore) Create(_ context.Context, b *models.Booking, d *models.PaymentDetail, ts []models.StateTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.nextID
	f.nextID++
	b.CreatedAt = time.Now()
	copyB := *b
	f.bookings[b.ID] = &copyB
	d.BookingID = b.ID
	copyD := *d
	f.details[b.ID] = &copyD
	for i := range ts {
		ts[i].BookingID = b.ID
		f.transitions = append(f.transitions, ts[i])
	}
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	copyB := *b
	return &copyB, nil
}

func (f *fakeStore) GetDetail(_ context.Context, id int64) (*models.PaymentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return nil, nil
	}
	copyD := *d
	return &copyD, nil
}

func (f *fakeStore) GetByIntentRef(_ context.Context, ref string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.details {
		if d.IntentRef != nil && *d.IntentRef == ref {
			copyB := *f.bookings[id]
			return &copyB, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindOverlapping(_ context.Context, coachID int64, start, end, now time.Time) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.CoachID != coachID {
			continue
		}
		if !b.ScheduledStartAt.Before(end) || !b.ScheduledEndAt.After(start) {
			continue
		}
		if b.Active() || b.LockExpiresAt.After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetByFingerprint(_ context.Context, fp string, after time.Time) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.Fingerprint == fp && b.CreatedAt.After(after) {
			copyB := *b
			return &copyB, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID int64) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.CoachID == userID || b.CounterpartyID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) Apply(_ context.Context, cs *models.ChangeSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cs.Booking != nil {
		copyB := *cs.Booking
		f.bookings[cs.Booking.ID] = &copyB
	}
	if cs.Detail != nil {
		copyD := *cs.Detail
		f.details[cs.Detail.BookingID] = &copyD
	}
	for i := range cs.Participants {
		copyP := cs.Participants[i]
		f.participants[copyP.ID] = &copyP
	}
	f.transitions = append(f.transitions, cs.Transitions...)
	f.events = append(f.events, cs.Events...)
	return nil
}

func (f *fakeStore) ClaimPayout(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok || d.PayoutClaimedAt != nil || d.TransferRef != nil {
		return false, nil
	}
	now := time.Now()
	d.PayoutClaimedAt = &now
	return true, nil
}

func (f *fakeStore) ReleasePayoutClaim(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.details[id]; ok && d.TransferRef == nil {
		d.PayoutClaimedAt = nil
	}
	return nil
}

func (f *fakeStore) SetTransferRef(_ context.Context, id int64, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok || d.TransferRef != nil {
		return false, nil
	}
	d.TransferRef = &ref
	return true, nil
}

func (f *fakeStore) AddParticipant(_ context.Context, p *models.Participant, ts []models.StateTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if existing.BookingID == p.BookingID && existing.UserID == p.UserID {
			return fmt.Errorf("duplicate participant")
		}
	}
	p.ID = f.nextID
	f.nextID++
	copyP := *p
	f.participants[p.ID] = &copyP
	f.transitions = append(f.transitions, ts...)
	return nil
}

func (f *fakeStore) RemoveParticipant(_ context.Context, id int64, ts []models.StateTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.participants, id)
	f.transitions = append(f.transitions, ts...)
	return nil
}

func (f *fakeStore) GetParticipants(_ context.Context, bookingID int64) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for _, p := range f.participants {
		if p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetParticipantByIntent(_ context.Context, ref string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.IntentRef != nil && *p.IntentRef == ref {
			copyP := *p
			return &copyP, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListExpiredUnpaid(_ context.Context, now time.Time) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for id, b := range f.bookings {
		d := f.details[id]
		if b.ApprovalStatus == models.ApprovalAccepted &&
			d.Status == models.PaymentAwaitingClient &&
			d.PaymentDueAt != nil && d.PaymentDueAt.Before(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListStaleDualConfirm(_ context.Context, cutoff time.Time) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for id, b := range f.bookings {
		d := f.details[id]
		if b.Type != models.TypePublicGroup &&
			b.ApprovalStatus == models.ApprovalAccepted &&
			b.FulfillmentStatus == models.FulfillmentScheduled &&
			b.CoachConfirmedAt != nil && b.CoachConfirmedAt.Before(cutoff) &&
			d.CounterpartyConfirmedAt == nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListStalePublicGroup(_ context.Context, cutoff time.Time) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Type == models.TypePublicGroup &&
			b.ApprovalStatus == models.ApprovalAccepted &&
			b.FulfillmentStatus == models.FulfillmentScheduled &&
			b.ScheduledEndAt.Before(cutoff) {
			out = append(out, *b)
		}
	}
	return out, nil
}

// lastTransition returns the newest audit record for the given field.
func (f *fakeStore) lastTransition(field string) *models.StateTransition {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.transitions) - 1; i >= 0; i-- {
		if f.transitions[i].Field == field {
			t := f.transitions[i]
			return &t
		}
	}
	return nil
}

type fakeCoaches struct {
	coaches map[int64]*models.Coach
}

func (f *fakeCoaches) GetByID(_ context.Context, id int64) (*models.Coach, error) {
	c, ok := f.coaches[id]
	if !ok {
		return nil, nil
	}
	copyC := *c
	return &copyC, nil
}

type fakeIdem struct {
	mu     sync.Mutex
	claims map[string]string
}

func newFakeIdem() *fakeIdem {
	return &fakeIdem{claims: map[string]string{}}
}

func (f *fakeIdem) Claim(_ context.Context, scope, key string, _ time.Duration) (*repository.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := scope + "/" + key
	if result, ok := f.claims[k]; ok {
		return &repository.ClaimResult{Won: false, Existing: result}, nil
	}
	f.claims[k] = ""
	return &repository.ClaimResult{Won: true}, nil
}

func (f *fakeIdem) StoreResult(_ context.Context, scope, key, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[scope+"/"+key] = result
	return nil
}

func (f *fakeIdem) Release(_ context.Context, scope, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, scope+"/"+key)
	return nil
}

func (f *fakeIdem) PurgeExpired(_ context.Context) (int64, error) { return 0, nil }

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*models.PayoutLedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]*models.PayoutLedgerEntry{}}
}

func (f *fakeLedger) Upsert(_ context.Context, e *models.PayoutLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyE := *e
	f.entries[e.PayoutID] = &copyE
	return nil
}

type fakeAudit struct {
	store *fakeStore
}

func (f *fakeAudit) ListTransitions(_ context.Context, bookingID int64, _ int) ([]models.StateTransition, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []models.StateTransition
	for _, t := range f.store.transitions {
		if t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAudit) ListEvents(_ context.Context, bookingID int64, _ int) ([]models.PaymentEvent, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []models.PaymentEvent
	for _, e := range f.store.events {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeProvider records provider calls and lets tests script intent states and
// failures.
type fakeProvider struct {
	mu        sync.Mutex
	intents   map[string]*external.IntentStatus
	transfers []external.TransferRequest
	captures  []string
	refunds   []string
	voids     []string

	transferErr error
	captureErr  error
	refundErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: map[string]*external.IntentStatus{}}
}

func (f *fakeProvider) setIntent(ref, status string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[ref] = &external.IntentStatus{Ref: ref, Status: status, AmountCents: amount}
}

func (f *fakeProvider) CheckIntent(_ context.Context, ref string) (*external.IntentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[ref]
	if !ok {
		return nil, apperr.Provider("intents/check", false, fmt.Errorf("unknown intent"))
	}
	copyI := *intent
	return &copyI, nil
}

func (f *fakeProvider) Capture(_ context.Context, ref string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captures = append(f.captures, ref)
	if intent, ok := f.intents[ref]; ok {
		intent.Status = external.IntentSucceeded
	}
	return nil
}

func (f *fakeProvider) Refund(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunds = append(f.refunds, ref)
	return nil
}

func (f *fakeProvider) Void(_ context.Context, ref string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voids = append(f.voids, ref)
	return nil
}

func (f *fakeProvider) CreateTransfer(_ context.Context, treq external.TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, treq)
	return fmt.Sprintf("tr_%d", len(f.transfers)), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakePublisher) Publish(subject string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakePublisher) published(subject string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// env bundles a service wired against fakes with a controllable clock.
type env struct {
	svc       *BookingService
	store     *fakeStore
	coaches   *fakeCoaches
	idem      *fakeIdem
	ledger    *fakeLedger
	provider  *fakeProvider
	publisher *fakePublisher
	now       time.Time
}

func newEnv() *env {
	store := newFakeStore()
	dest := "acct_coach_1"
	e := &env{
		store: store,
		coaches: &fakeCoaches{coaches: map[int64]*models.Coach{
			1: {
				ID:                  1,
				DisplayName:         "Dana",
				Email:               "dana@example.com",
				HourlyRateCents:     6000,
				PlatformFeePct:      15,
				AllowedDurationsMin: []int64{60, 90},
				PayoutDestination:   &dest,
			},
		}},
		idem:      newFakeIdem(),
		ledger:    newFakeLedger(),
		provider:  newFakeProvider(),
		publisher: &fakePublisher{},
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	e.svc = NewBookingService(Deps{
		Bookings:  store,
		Coaches:   e.coaches,
		Idem:      e.idem,
		Ledger:    e.ledger,
		Audit:     &fakeAudit{store: store},
		Provider:  e.provider,
		Publisher: e.publisher,
		Knobs: Knobs{
			ProvisionalLockTTL: 5 * time.Minute,
			PaymentWindow:      24 * time.Hour,
			AutoResolveAfter:   7 * 24 * time.Hour,
			CreateDedupWindow:  24 * time.Hour,
			WebhookDedupWindow: 24 * time.Hour,
		},
	})
	e.svc.now = func() time.Time { return e.now }
	return e
}

func (e *env) advance(d time.Duration) { e.now = e.now.Add(d) }

var (
	coachActor  = models.Actor{ID: 1, Role: models.RoleCoach}
	clientActor = models.Actor{ID: 42, Role: models.RoleClient}
	adminActor  = models.Actor{ID: 99, Role: models.RoleAdmin}
)

func (e *env) createRequest() *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		CoachID:       1,
		Type:          string(models.TypeIndividual),
		StartAt:       e.now.Add(48 * time.Hour),
		EndAt:         e.now.Add(49 * time.Hour),
		VenueTimezone: "Europe/London",
		Location:      "Court 4, Riverside Club",
	}
}

// createAccepted walks a fresh individual booking to the accepted state.
func (e *env) createAccepted(t interface{ Fatalf(string, ...interface{}) }) int64 {
	resp, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.svc.AcceptBooking(context.Background(), coachActor, resp.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return resp.ID
}

// createCaptured walks a booking to accepted with payment captured.
func (e *env) createCaptured(t interface{ Fatalf(string, ...interface{}) }) int64 {
	id := e.createAccepted(t)
	detail, _ := e.store.GetDetail(context.Background(), id)
	e.provider.setIntent("pi_100", external.IntentRequiresCapture, detail.GrossCents)
	if err := e.svc.ConfirmPayment(context.Background(), clientActor, id, "pi_100"); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return id
}
