package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// maxTxnAttempts bounds retries of a read-write transaction that lost a
// conflict against a concurrent writer.
const maxTxnAttempts = 5

// Options configures Open.
type Options struct {
	// Path is the badger directory. Empty opens an in-memory database.
	Path   string
	Logger *slog.Logger
}

// Badger is the badger-backed store.
type Badger struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Badger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bo := badger.DefaultOptions(opts.Path).
		WithLogger(newBadgerLogger(logger.With("component", "badger")))
	if opts.Path == "" {
		bo = bo.WithInMemory(true)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", opts.Path, err)
	}
	return &Badger{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Badger) Close() error {
	return s.db.Close()
}

// AddTrainLine upserts the line by name, upserts every station by name and
// records a connection for each consecutive pair of stations, all in one
// transaction. A connection that already exists for the line is left as is.
func (s *Badger) AddTrainLine(ctx context.Context, name string, fareCents int64, stations []string) (*TrainLine, error) {
	if fareCents < 0 {
		return nil, fmt.Errorf("add train line %q: %w", name, ErrInvalidAmount)
	}
	var line TrainLine
	err := s.update(ctx, func(txn *badger.Txn) error {
		l, err := upsertLine(txn, name, fareCents)
		if err != nil {
			return err
		}
		line = l

		ids := make([]uint64, len(stations))
		for i, st := range stations {
			id, err := upsertStation(txn, st)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		for i := 0; i+1 < len(ids); i++ {
			c := Connection{TrainLineID: line.ID, Station1ID: ids[i], Station2ID: ids[i+1]}
			if err := insertConnection(txn, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add train line %q: %w", name, err)
	}
	return &line, nil
}

// ListTrainLines returns every train line.
func (s *Badger) ListTrainLines(ctx context.Context) ([]TrainLine, error) {
	var out []TrainLine
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = scan[TrainLine](txn, []byte(prefixLine))
		return err
	})
	return out, err
}

// ReadTopology returns every station and connection from one read
// transaction.
func (s *Badger) ReadTopology(ctx context.Context) (*Topology, error) {
	var topo Topology
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		if topo.Stations, err = scan[Station](txn, []byte(prefixStation)); err != nil {
			return err
		}
		topo.Connections, err = scan[Connection](txn, []byte(prefixConn))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	return &topo, nil
}

// StationExists reports whether a station with the given name exists.
func (s *Badger) StationExists(ctx context.Context, name string) (bool, error) {
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(nameKey(prefixStationIdx, name))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// FareForStation returns the cheapest fare among the lines that have a
// connection touching the station. ErrNotFound means no line serves it.
func (s *Badger) FareForStation(ctx context.Context, name string) (int64, error) {
	var fare int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		stationID, err := lookupID(txn, prefixStationIdx, name)
		if err != nil {
			return err
		}
		conns, err := scan[Connection](txn, []byte(prefixConn))
		if err != nil {
			return err
		}
		found := false
		seen := make(map[uint64]struct{})
		for _, c := range conns {
			if c.Station1ID != stationID && c.Station2ID != stationID {
				continue
			}
			if _, ok := seen[c.TrainLineID]; ok {
				continue
			}
			seen[c.TrainLineID] = struct{}{}
			var line TrainLine
			if err := getRecord(txn, idKey(prefixLine, c.TrainLineID), &line); err != nil {
				return fmt.Errorf("line %d: %w", c.TrainLineID, err)
			}
			if !found || line.FareCents < fare {
				fare = line.FareCents
				found = true
			}
		}
		if !found {
			return ErrNotFound
		}
		return nil
	})
	return fare, err
}

// AddOrUpdateCard creates the card with the given balance, or adds the
// amount to the balance of an existing card. The amount must be positive
// and the resulting balance must fit in an int64.
func (s *Badger) AddOrUpdateCard(ctx context.Context, number string, amountCents int64) (*Card, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("add or update card %q: %w", number, ErrInvalidAmount)
	}
	var card Card
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := nameKey(prefixCard, number)
		err := getRecord(txn, key, &card)
		switch {
		case errors.Is(err, ErrNotFound):
			id, err := nextID(txn, seqCard)
			if err != nil {
				return err
			}
			card = Card{ID: id, Number: number, BalanceCents: amountCents}
		case err != nil:
			return err
		default:
			if card.BalanceCents > math.MaxInt64-amountCents {
				return ErrBalanceOverflow
			}
			card.BalanceCents += amountCents
		}
		return setRecord(txn, key, card)
	})
	if err != nil {
		return nil, fmt.Errorf("add or update card %q: %w", number, err)
	}
	return &card, nil
}

// GetCard returns the card with the given number or ErrNotFound.
func (s *Badger) GetCard(ctx context.Context, number string) (*Card, error) {
	var card Card
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getRecord(txn, nameKey(prefixCard, number), &card)
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// ChargeEntry logs an entry ride and debits the fare in one transaction.
// The balance is checked against the card as read inside the transaction.
func (s *Badger) ChargeEntry(ctx context.Context, number, station string, fareCents int64) (*Card, error) {
	var card Card
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := nameKey(prefixCard, number)
		if err := getRecord(txn, key, &card); err != nil {
			return err
		}
		if card.BalanceCents < fareCents {
			return ErrInsufficientBalance
		}
		if err := s.logRide(txn, card, station, RideEnter, fareCents); err != nil {
			return err
		}
		card.BalanceCents -= fareCents
		return setRecord(txn, key, card)
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// LogExit records an exit ride and returns the card unchanged.
func (s *Badger) LogExit(ctx context.Context, number, station string) (*Card, error) {
	var card Card
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getRecord(txn, nameKey(prefixCard, number), &card); err != nil {
			return err
		}
		return s.logRide(txn, card, station, RideExit, 0)
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// ListRides returns the ride log of one card, oldest first. An unknown card
// has no rides.
func (s *Badger) ListRides(ctx context.Context, number string) ([]Ride, error) {
	var out []Ride
	err := s.view(ctx, func(txn *badger.Txn) error {
		var card Card
		err := getRecord(txn, nameKey(prefixCard, number), &card)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = scan[Ride](txn, ridePrefix(card.ID))
		return err
	})
	return out, err
}

func (s *Badger) logRide(txn *badger.Txn, card Card, station string, action RideAction, fareCents int64) error {
	seq, err := nextID(txn, seqRide)
	if err != nil {
		return err
	}
	ride := Ride{
		ID:         uuid.New().String(),
		CardNumber: card.Number,
		Station:    station,
		Action:     action,
		FareCents:  fareCents,
		At:         s.now().UTC(),
	}
	return setRecord(txn, rideKey(card.ID, seq), ride)
}

func (s *Badger) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func upsertLine(txn *badger.Txn, name string, fareCents int64) (TrainLine, error) {
	id, err := lookupID(txn, prefixLineName, name)
	switch {
	case errors.Is(err, ErrNotFound):
		if id, err = nextID(txn, seqLine); err != nil {
			return TrainLine{}, err
		}
		if err := txn.Set(nameKey(prefixLineName, name), encodeID(id)); err != nil {
			return TrainLine{}, err
		}
	case err != nil:
		return TrainLine{}, err
	}
	line := TrainLine{ID: id, Name: name, FareCents: fareCents}
	return line, setRecord(txn, idKey(prefixLine, id), line)
}

func upsertStation(txn *badger.Txn, name string) (uint64, error) {
	id, err := lookupID(txn, prefixStationIdx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if id, err = nextID(txn, seqStation); err != nil {
		return 0, err
	}
	if err := txn.Set(nameKey(prefixStationIdx, name), encodeID(id)); err != nil {
		return 0, err
	}
	return id, setRecord(txn, idKey(prefixStation, id), Station{ID: id, Name: name})
}

func insertConnection(txn *badger.Txn, c Connection) error {
	pk := pairKey(c)
	_, err := txn.Get(pk)
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	seq, err := nextID(txn, seqConn)
	if err != nil {
		return err
	}
	if err := txn.Set(pk, encodeID(seq)); err != nil {
		return err
	}
	return setRecord(txn, idKey(prefixConn, seq), c)
}

func lookupID(txn *badger.Txn, prefix, name string) (uint64, error) {
	item, err := txn.Get(nameKey(prefix, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var id uint64
	err = item.Value(func(val []byte) error {
		id = decodeID(val)
		return nil
	})
	return id, err
}

// nextID advances the named counter inside txn. IDs start at 1.
func nextID(txn *badger.Txn, name string) (uint64, error) {
	key := []byte(prefixSeq + name)
	var cur uint64
	item, err := txn.Get(key)
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			cur = decodeID(val)
			return nil
		}); err != nil {
			return 0, err
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	}
	cur++
	return cur, txn.Set(key, encodeID(cur))
}

func getRecord(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func setRecord(txn *badger.Txn, key []byte, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, b)
}

func scan[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec T
		if err := it.Item().Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}
