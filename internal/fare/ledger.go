// Package fare implements prepaid cards: top-ups, fare debits on station
// entry and ride logging on exit.
package fare

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/subway/internal/ctxlog"
	"github.com/gyaneshwarpardhi/subway/internal/metrics"
	"github.com/gyaneshwarpardhi/subway/internal/store"
)

var (
	ErrInvalidTopUp        = errors.New("invalid card number or amount")
	ErrUnknownStation      = errors.New("station does not exist")
	ErrCardNotFound        = errors.New("card was not found")
	ErrNoFare              = errors.New("station is not served by any train line")
	ErrInsufficientBalance = errors.New("insufficient prepaid balance")
)

// Store is the persistence the ledger needs.
type Store interface {
	StationExists(ctx context.Context, name string) (bool, error)
	FareForStation(ctx context.Context, name string) (int64, error)
	AddOrUpdateCard(ctx context.Context, number string, amountCents int64) (*store.Card, error)
	GetCard(ctx context.Context, number string) (*store.Card, error)
	ChargeEntry(ctx context.Context, number, station string, fareCents int64) (*store.Card, error)
	LogExit(ctx context.Context, number, station string) (*store.Card, error)
	ListRides(ctx context.Context, number string) ([]store.Ride, error)
}

// Ledger applies fare rules on top of a Store.
type Ledger struct {
	store Store
}

func NewLedger(st Store) *Ledger {
	return &Ledger{store: st}
}

// TopUp creates the card with the given balance or adds to an existing one.
func (l *Ledger) TopUp(ctx context.Context, number string, amountCents int64) (*store.Card, error) {
	if number == "" || amountCents <= 0 {
		return nil, ErrInvalidTopUp
	}
	card, err := l.store.AddOrUpdateCard(ctx, number, amountCents)
	if errors.Is(err, store.ErrBalanceOverflow) || errors.Is(err, store.ErrInvalidAmount) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopUp, err)
	}
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("card topped up", "card", number, "amount_cents", amountCents, "balance_cents", card.BalanceCents)
	return card, nil
}

// Enter charges the cheapest fare of the lines serving the station and
// returns the card with its new balance.
func (l *Ledger) Enter(ctx context.Context, station, number string) (*store.Card, error) {
	card, err := l.enter(ctx, station, number)
	metrics.FareEntries.WithLabelValues(entryOutcome(err)).Inc()
	return card, err
}

func (l *Ledger) enter(ctx context.Context, station, number string) (*store.Card, error) {
	if err := l.checkStation(ctx, station); err != nil {
		return nil, err
	}
	if _, err := l.card(ctx, number); err != nil {
		return nil, err
	}

	fare, err := l.store.FareForStation(ctx, station)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoFare
	}
	if err != nil {
		return nil, fmt.Errorf("fare for %q: %w", station, err)
	}

	card, err := l.store.ChargeEntry(ctx, number, station, fare)
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return nil, ErrInsufficientBalance
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrCardNotFound
	case err != nil:
		return nil, fmt.Errorf("charge entry: %w", err)
	}
	ctxlog.FromContext(ctx).Info("fare charged",
		"card", number, "station", station, "fare_cents", fare, "balance_cents", card.BalanceCents)
	return card, nil
}

// Exit logs the exit ride. No fare is charged.
func (l *Ledger) Exit(ctx context.Context, station, number string) (*store.Card, error) {
	if err := l.checkStation(ctx, station); err != nil {
		return nil, err
	}
	card, err := l.store.LogExit(ctx, number, station)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("log exit: %w", err)
	}
	return card, nil
}

// Rides returns the card and its ride log, oldest first.
func (l *Ledger) Rides(ctx context.Context, number string) (*store.Card, []store.Ride, error) {
	card, err := l.card(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	rides, err := l.store.ListRides(ctx, number)
	if err != nil {
		return nil, nil, fmt.Errorf("list rides: %w", err)
	}
	return card, rides, nil
}

func (l *Ledger) checkStation(ctx context.Context, station string) error {
	ok, err := l.store.StationExists(ctx, station)
	if err != nil {
		return fmt.Errorf("check station %q: %w", station, err)
	}
	if !ok {
		return ErrUnknownStation
	}
	return nil
}

func (l *Ledger) card(ctx context.Context, number string) (*store.Card, error) {
	if number == "" {
		return nil, ErrCardNotFound
	}
	card, err := l.store.GetCard(ctx, number)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return card, nil
}

func entryOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownStation):
		return "unknown_station"
	case errors.Is(err, ErrCardNotFound):
		return "card_not_found"
	case errors.Is(err, ErrNoFare):
		return "no_fare"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}
