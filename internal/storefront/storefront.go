// Package storefront holds the state of the XP store page: the catalog, the
// shopper and the single confirmation flow.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"xpstore/internal/catalog"
	"xpstore/internal/format"
	"xpstore/internal/journal"
	"xpstore/internal/logger"
	"xpstore/internal/webhook"
)

var (
	// ErrMissingUserID is the validation failure for a shopper without an id.
	ErrMissingUserID   = errors.New("user identifier is missing")
	ErrNoSelection     = errors.New("no offering selected")
	ErrInFlight        = errors.New("a purchase is already being processed")
	ErrUnknownOffering = errors.New("unknown offering")
)

// Submitter delivers a purchase intent to the purchase webhook.
type Submitter interface {
	Submit(ctx context.Context, intent webhook.PurchaseIntent) error
}

// Recorder keeps an audit trail of submissions.
type Recorder interface {
	Record(ctx context.Context, a journal.Attempt) error
}

// UserSnapshot is the shopper as far as the store knows.
type UserSnapshot struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	BalanceXP   int64  `json:"balance_xp"`
}

// PlaceholderUser stands in until the identity provider supplies the real shopper.
func PlaceholderUser() UserSnapshot {
	return UserSnapshot{
		ID:          123456789,
		DisplayName: "Пользователь",
		Handle:      "user",
	}
}

// View is the storefront page state. All mutations go through mu, which
// serializes events the way a UI event loop would.
type View struct {
	catalog   *catalog.Catalog
	submitter Submitter
	recorder  Recorder
	locale    string
	now       func() time.Time

	mu    sync.Mutex
	user  UserSnapshot
	state State
	// pending is the flow whose request is on the wire. It outlives a
	// cancel, so no second request starts until the first returns.
	pending uuid.UUID
}

type Option func(*View)

func WithUser(u UserSnapshot) Option {
	return func(v *View) { v.user = u }
}

func WithLocale(locale string) Option {
	return func(v *View) { v.locale = locale }
}

// WithRecorder journals every submission to r.
func WithRecorder(r Recorder) Option {
	return func(v *View) { v.recorder = r }
}

func New(cat *catalog.Catalog, submitter Submitter, opts ...Option) *View {
	v := &View{
		catalog:   cat,
		submitter: submitter,
		locale:    "ru-RU",
		now:       time.Now,
		user:      PlaceholderUser(),
		state:     Idle{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FormatNumber groups n for the view's locale.
func (v *View) FormatNumber(n int64) string {
	return format.Number(n, v.locale)
}

func (v *View) Catalog() *catalog.Catalog {
	return v.catalog
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Busy reports whether a webhook request is outstanding.
func (v *View) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending != uuid.Nil
}

func (v *View) User() UserSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.user
}

// Open starts a purchase flow for offering id, replacing any finished or
// pending one. It is refused while a request is in flight.
func (v *View) Open(id int64) error {
	o, err := v.catalog.Find(id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownOffering, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending != uuid.Nil {
		return ErrInFlight
	}
	v.state = Selected{Offering: o}
	logger.LogInfo("Purchase flow opened for offering %d (%s)", o.ID, o.Name)
	return nil
}

// Cancel closes the confirmation. A request in flight still completes and
// still credits the balance on success; its message is just not shown. The
// view stays busy until that request returns.
func (v *View) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, idle := v.state.(Idle); idle {
		return
	}
	v.state = Idle{}
	logger.LogInfo("Purchase flow cancelled")
}

// Submit confirms the selected offering. Purchase failures are not returned
// as errors: they end the flow in Failed. The returned error is only set when
// there is nothing to confirm (ErrNoSelection) or a request is already
// running (ErrInFlight).
func (v *View) Submit(ctx context.Context) (State, error) {
	v.mu.Lock()

	if v.pending != uuid.Nil {
		s := v.state
		v.mu.Unlock()
		return s, ErrInFlight
	}

	var o catalog.Offering
	switch s := v.state.(type) {
	case Idle:
		v.mu.Unlock()
		return s, ErrNoSelection
	case Confirming:
		v.mu.Unlock()
		return s, ErrInFlight
	default:
		o, _ = Selection(s)
	}

	user := v.user
	if user.ID == 0 {
		v.state = Failed{Offering: o, Message: Message{Kind: KindError, Text: msgMissingUserID}}
		result := v.state
		v.mu.Unlock()

		logger.LogWarn("Purchase of offering %d refused: %v", o.ID, ErrMissingUserID)
		v.record(ctx, journal.Attempt{OfferingID: o.ID, XP: o.XP, Outcome: journal.OutcomeValidation, Error: ErrMissingUserID.Error()})
		return result, nil
	}

	flow := uuid.New()
	v.state = Confirming{Offering: o, flow: flow}
	v.pending = flow
	v.mu.Unlock()

	intent := webhook.PurchaseIntent{
		UserID:      user.ID,
		OfferingID:  o.ID,
		DisplayName: user.DisplayName,
		Handle:      user.Handle,
	}

	start := v.now()
	err := v.submitter.Submit(ctx, intent)
	elapsed := v.now().Sub(start)

	result, outcome := resolve(o, err)

	v.mu.Lock()
	if outcome == journal.OutcomeSuccess {
		// Optimistic: the webhook only acknowledged the intent.
		v.user.BalanceXP += o.XP
	}
	if c, ok := v.state.(Confirming); ok && c.flow == flow {
		v.state = result
	}
	if v.pending == flow {
		v.pending = uuid.Nil
	}
	balance := v.user.BalanceXP
	v.mu.Unlock()

	if err != nil {
		logger.LogError("Purchase of offering %d failed (%s): %v", o.ID, outcome, err)
	} else {
		logger.LogInfo("Purchase of offering %d initiated in %v, balance now %d XP", o.ID, elapsed, balance)
	}

	a := journal.Attempt{
		ID:         flow.String(),
		UserID:     user.ID,
		OfferingID: o.ID,
		XP:         o.XP,
		Outcome:    outcome,
		Duration:   elapsed,
	}
	if err != nil {
		a.Error = err.Error()
	}
	v.record(ctx, a)

	return result, nil
}

func (v *View) record(ctx context.Context, a journal.Attempt) {
	if v.recorder == nil {
		return
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = v.now()
	}
	if err := v.recorder.Record(ctx, a); err != nil {
		logger.LogWarn("Failed to journal purchase attempt: %v", err)
	}
}

// resolve maps the webhook result onto the state that ends the flow.
func resolve(o catalog.Offering, err error) (State, journal.Outcome) {
	if err == nil {
		return Succeeded{Offering: o, Message: Message{Kind: KindSuccess, Text: msgPurchaseInitiated}}, journal.OutcomeSuccess
	}

	var (
		rejected  *webhook.RejectedError
		transport *webhook.TransportError
	)
	switch {
	case errors.As(err, &rejected):
		return failed(o, rejected.Message, msgPurchaseFailed), journal.OutcomeRejected
	case errors.As(err, &transport):
		return failed(o, transport.Message, msgConnectionFailed), journal.OutcomeTransport
	default:
		return failed(o, "", msgConnectionFailed), journal.OutcomeTransport
	}
}

func failed(o catalog.Offering, text, fallback string) Failed {
	if text == "" {
		text = fallback
	}
	return Failed{Offering: o, Message: Message{Kind: KindError, Text: text}}
}
