package storefront

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"xpstore/internal/catalog"
	"xpstore/internal/journal"
	"xpstore/internal/webhook"
)

// fakeSubmitter answers every intent with err and counts calls.
type fakeSubmitter struct {
	mu      sync.Mutex
	err     error
	intents []webhook.PurchaseIntent
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, intent webhook.PurchaseIntent) error {
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	block, started, err := f.block, f.started, f.err
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

type memoryRecorder struct {
	mu       sync.Mutex
	attempts []journal.Attempt
}

func (m *memoryRecorder) Record(_ context.Context, a journal.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func newTestView(t *testing.T, sub Submitter, opts ...Option) *View {
	t.Helper()
	return New(catalog.MustDefault(), sub, opts...)
}

func TestOpenSelectsOffering(t *testing.T) {
	v := newTestView(t, &fakeSubmitter{})

	if err := v.Open(3); err != nil {
		t.Fatalf("Open: %v", err)
	}
	o, ok := Selection(v.State())
	if !ok || o.ID != 3 {
		t.Fatalf("selection = %+v, %v; want offering 3", o, ok)
	}
	if v.Snapshot().Modal == nil {
		t.Error("modal should be visible after Open")
	}
	if _, ok := Result(v.State()); ok {
		t.Error("Open should clear any result message")
	}
}

func TestOpenUnknownOffering(t *testing.T) {
	v := newTestView(t, &fakeSubmitter{})
	if err := v.Open(42); !errors.Is(err, ErrUnknownOffering) || !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Open(42) error = %v", err)
	}
	if v.State().Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", v.State().Phase())
	}
}

func TestOpenReplacesFinishedFlow(t *testing.T) {
	v := newTestView(t, &fakeSubmitter{err: &webhook.RejectedError{Message: "nope"}})
	v.Open(1)
	v.Submit(context.Background())

	if err := v.Open(2); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, ok := v.State().(Selected)
	if !ok || s.Offering.ID != 2 {
		t.Fatalf("state = %#v, want Selected(2)", v.State())
	}
	if v.Snapshot().Modal.Message != nil {
		t.Error("new flow should not carry the previous message")
	}
}

func TestCancelResetsFromEveryState(t *testing.T) {
	setups := map[string]func(v *View){
		"idle":      func(v *View) {},
		"selected":  func(v *View) { v.Open(1) },
		"succeeded": func(v *View) { v.Open(1); v.Submit(context.Background()) },
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			v := newTestView(t, &fakeSubmitter{})
			setup(v)

			v.Cancel()
			if _, ok := v.State().(Idle); !ok {
				t.Fatalf("state = %#v, want Idle", v.State())
			}
			if v.Snapshot().Modal != nil {
				t.Error("modal should be hidden after Cancel")
			}

			before := v.Snapshot()
			v.Cancel()
			after := v.Snapshot()
			if before.Phase != after.Phase || before.User != after.User {
				t.Error("second Cancel changed state")
			}
		})
	}
}

func TestSubmitSuccessCreditsBalance(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := &memoryRecorder{}
	v := newTestView(t, sub, WithRecorder(rec))
	before := v.User().BalanceXP

	v.Open(2)
	state, err := v.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s, ok := state.(Succeeded)
	if !ok {
		t.Fatalf("state = %#v, want Succeeded", state)
	}
	if s.Message.Kind != KindSuccess || s.Message.Text != msgPurchaseInitiated {
		t.Errorf("message = %+v", s.Message)
	}
	if got := v.User().BalanceXP; got != before+10000 {
		t.Errorf("balance = %d, want %d", got, before+10000)
	}
	if InFlight(v.State()) {
		t.Error("still in flight after Submit")
	}

	want := webhook.PurchaseIntent{UserID: 123456789, OfferingID: 2, DisplayName: "Пользователь", Handle: "user"}
	if sub.intents[0] != want {
		t.Errorf("intent = %+v, want %+v", sub.intents[0], want)
	}
	if len(rec.attempts) != 1 || rec.attempts[0].Outcome != journal.OutcomeSuccess {
		t.Errorf("journal = %+v", rec.attempts)
	}
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		text    string
		outcome journal.Outcome
	}{
		{"rejected with text", &webhook.RejectedError{Message: "X"}, "X", journal.OutcomeRejected},
		{"rejected without text", &webhook.RejectedError{}, msgPurchaseFailed, journal.OutcomeRejected},
		{"transport with text", &webhook.TransportError{StatusCode: 502, Message: "upstream down"}, "upstream down", journal.OutcomeTransport},
		{"transport without text", &webhook.TransportError{Err: context.DeadlineExceeded}, msgConnectionFailed, journal.OutcomeTransport},
		{"other error", errors.New("boom"), msgConnectionFailed, journal.OutcomeTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memoryRecorder{}
			v := newTestView(t, &fakeSubmitter{err: tt.err}, WithRecorder(rec))
			before := v.User().BalanceXP

			v.Open(5)
			state, err := v.Submit(context.Background())
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}

			f, ok := state.(Failed)
			if !ok {
				t.Fatalf("state = %#v, want Failed", state)
			}
			if f.Message.Kind != KindError || f.Message.Text != tt.text {
				t.Errorf("message = %+v, want error %q", f.Message, tt.text)
			}
			if v.User().BalanceXP != before {
				t.Error("balance changed on failure")
			}
			if rec.attempts[0].Outcome != tt.outcome {
				t.Errorf("outcome = %s, want %s", rec.attempts[0].Outcome, tt.outcome)
			}
		})
	}
}

func TestSubmitWithoutUserIDSkipsNetwork(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := &memoryRecorder{}
	user := PlaceholderUser()
	user.ID = 0
	v := newTestView(t, sub, WithUser(user), WithRecorder(rec))

	v.Open(1)
	state, err := v.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if sub.calls() != 0 {
		t.Errorf("webhook called %d times, want 0", sub.calls())
	}
	msg, ok := Result(state)
	if !ok || msg.Kind != KindError || msg.Text != msgMissingUserID {
		t.Errorf("message = %+v", msg)
	}
	if rec.attempts[0].Outcome != journal.OutcomeValidation {
		t.Errorf("outcome = %s, want validation", rec.attempts[0].Outcome)
	}
}

func TestSubmitRequiresSelection(t *testing.T) {
	sub := &fakeSubmitter{}
	v := newTestView(t, sub)
	if _, err := v.Submit(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Submit error = %v, want ErrNoSelection", err)
	}
	if sub.calls() != 0 {
		t.Error("webhook called without a selection")
	}
}

func TestSubmitRetryAfterFailure(t *testing.T) {
	sub := &fakeSubmitter{err: &webhook.RejectedError{Message: "later"}}
	v := newTestView(t, sub)
	v.Open(1)
	v.Submit(context.Background())

	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()

	state, err := v.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if state.Phase() != PhaseSucceeded {
		t.Errorf("phase = %s, want succeeded", state.Phase())
	}
	if sub.calls() != 2 {
		t.Errorf("webhook calls = %d, want 2", sub.calls())
	}
}

func TestInFlightGuards(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{}), started: make(chan struct{})}
	v := newTestView(t, sub)
	v.Open(2)

	done := make(chan State)
	go func() {
		s, _ := v.Submit(context.Background())
		done <- s
	}()
	<-sub.started

	snap := v.Snapshot()
	if !snap.Busy || snap.Phase != PhaseConfirming {
		t.Errorf("snapshot while in flight = %s busy=%v", snap.Phase, snap.Busy)
	}
	if _, err := v.Submit(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("second Submit error = %v, want ErrInFlight", err)
	}
	if err := v.Open(3); !errors.Is(err, ErrInFlight) {
		t.Errorf("Open while in flight error = %v, want ErrInFlight", err)
	}

	close(sub.block)
	if s := <-done; s.Phase() != PhaseSucceeded {
		t.Errorf("final phase = %s", s.Phase())
	}
	if sub.calls() != 1 {
		t.Errorf("webhook calls = %d, want 1", sub.calls())
	}
}

func TestCancelWhileInFlightKeepsBalanceUpdate(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{}), started: make(chan struct{})}
	v := newTestView(t, sub)
	v.Open(2)

	done := make(chan struct{})
	go func() {
		v.Submit(context.Background())
		close(done)
	}()
	<-sub.started

	v.Cancel()

	if snap := v.Snapshot(); !snap.Busy || snap.Modal != nil {
		t.Errorf("after cancel: busy=%v modal=%v, want busy with no modal", snap.Busy, snap.Modal != nil)
	}
	if err := v.Open(3); !errors.Is(err, ErrInFlight) {
		t.Errorf("Open while request pending: err = %v, want ErrInFlight", err)
	}
	if _, err := v.Submit(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("Submit while request pending: err = %v, want ErrInFlight", err)
	}
	if n := sub.calls(); n != 1 {
		t.Errorf("webhook calls while first pending = %d, want 1", n)
	}

	close(sub.block)
	<-done

	if v.Busy() {
		t.Error("still busy after the request returned")
	}
	if _, ok := v.State().(Idle); !ok {
		t.Errorf("state = %#v, want Idle: a cancelled flow must not reopen", v.State())
	}
	if got := v.User().BalanceXP; got != 10000 {
		t.Errorf("balance = %d, want 10000", got)
	}
}

func TestSubmitTimeoutThroughWebhookClient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	v := newTestView(t, webhook.NewClient(srv.URL, 50*time.Millisecond))
	v.Open(2)

	state, err := v.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	msg, ok := Result(state)
	if !ok || msg.Kind != KindError || msg.Text != msgConnectionFailed {
		t.Errorf("message = %+v, want generic connection error", msg)
	}
	if v.User().BalanceXP != 0 {
		t.Error("balance changed after timeout")
	}
	if InFlight(v.State()) || v.Busy() {
		t.Error("still in flight after timeout")
	}
}

func TestSnapshotFormatsModal(t *testing.T) {
	user := PlaceholderUser()
	user.BalanceXP = 5000
	v := newTestView(t, &fakeSubmitter{}, WithUser(user))
	v.Open(2)

	m := v.Snapshot().Modal
	if m == nil {
		t.Fatal("modal missing")
	}
	if m.Offering.XPText != "10 000" || m.Offering.PriceText != "200" {
		t.Errorf("modal shows %q XP / %q XTR", m.Offering.XPText, m.Offering.PriceText)
	}
	if m.BalanceAfter != 15000 || m.BalanceAfterText != "15 000" {
		t.Errorf("balance after = %d (%q)", m.BalanceAfter, m.BalanceAfterText)
	}
}

func TestOfferingsFormatting(t *testing.T) {
	v := newTestView(t, &fakeSubmitter{})
	for _, o := range v.Offerings() {
		if o.XP >= 1000 && o.XPText == "" {
			t.Errorf("offering %d has no xp text", o.ID)
		}
		if o.ID == 5 && o.XPText != "100 000" {
			t.Errorf("offering 5 xp = %q, want %q", o.XPText, "100 000")
		}
		if o.ID == 8 && o.PriceText != "6 420" {
			t.Errorf("offering 8 price = %q, want %q", o.PriceText, "6 420")
		}
	}
}

func TestFormatNumberUsesLocale(t *testing.T) {
	v := newTestView(t, &fakeSubmitter{}, WithLocale("en-US"))
	if got := v.FormatNumber(100000); got != "100,000" {
		t.Errorf("FormatNumber = %q", got)
	}
}
