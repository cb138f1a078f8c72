package storefront

import (
	"github.com/google/uuid"

	"xpstore/internal/catalog"
)

// OfferingView is an offering with its display strings.
type OfferingView struct {
	catalog.Offering
	XPText    string `json:"xp_text"`
	PriceText string `json:"price_text"`
}

// Modal is the confirmation dialog for the selected offering.
type Modal struct {
	Offering         OfferingView `json:"offering"`
	BalanceText      string       `json:"balance_text"`
	BalanceAfter     int64        `json:"balance_after"`
	BalanceAfterText string       `json:"balance_after_text"`
	Message          *Message     `json:"message,omitempty"`
}

// Snapshot is everything needed to render the page at one instant.
type Snapshot struct {
	Phase       Phase          `json:"phase"`
	Busy        bool           `json:"busy"`
	User        UserSnapshot   `json:"user"`
	BalanceText string         `json:"balance_text"`
	Currency    string         `json:"currency"`
	Offerings   []OfferingView `json:"offerings"`
	Modal       *Modal         `json:"modal,omitempty"`
}

// Offerings returns the catalog with display strings.
func (v *View) Offerings() []OfferingView {
	all := v.catalog.All()
	out := make([]OfferingView, len(all))
	for i, o := range all {
		out[i] = v.offeringView(o)
	}
	return out
}

func (v *View) offeringView(o catalog.Offering) OfferingView {
	return OfferingView{
		Offering:  o,
		XPText:    v.FormatNumber(o.XP),
		PriceText: v.FormatNumber(o.Price),
	}
}

// Snapshot captures the current state for rendering.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	state, user, busy := v.state, v.user, v.pending != uuid.Nil
	v.mu.Unlock()

	snap := Snapshot{
		Phase:       state.Phase(),
		Busy:        busy,
		User:        user,
		BalanceText: v.FormatNumber(user.BalanceXP),
		Currency:    catalog.Currency,
		Offerings:   v.Offerings(),
	}

	if o, ok := Selection(state); ok {
		after := user.BalanceXP + o.XP
		snap.Modal = &Modal{
			Offering:         v.offeringView(o),
			BalanceText:      snap.BalanceText,
			BalanceAfter:     after,
			BalanceAfterText: v.FormatNumber(after),
		}
		if msg, ok := Result(state); ok {
			snap.Modal.Message = &msg
		}
	}
	return snap
}
