// Package store persists the transit network and the fare ledger.
//
// Train lines, stations and connections are kept as relational facts: a
// connection references a line and two stations by ID, and stations are
// unique by name. Cards and ride logs live alongside them so that a fare
// debit and its ride entry commit in one transaction.
//
// All listings return records in insertion order.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInsufficientBalance is returned by ChargeEntry when the card cannot cover the fare.
	ErrInsufficientBalance = errors.New("store: insufficient balance")
	// ErrInvalidAmount is returned for negative fares and non-positive top-ups.
	ErrInvalidAmount = errors.New("store: invalid amount")
	// ErrBalanceOverflow is returned when a top-up would exceed the largest representable balance.
	ErrBalanceOverflow = errors.New("store: balance overflow")
)

// Topology is every station and connection as of one point in time.
type Topology struct {
	Stations    []Station
	Connections []Connection
}

// TopologyReader is the read side of the network consumed by the graph builder.
// Both listings come from the same snapshot, so every connection references
// a station in Stations.
type TopologyReader interface {
	ReadTopology(ctx context.Context) (*Topology, error)
}

// TrainLine is a named line with a flat fare.
type TrainLine struct {
	ID        uint64 `msgpack:"id" json:"id"`
	Name      string `msgpack:"name" json:"name"`
	FareCents int64  `msgpack:"fare_cents" json:"-"`
}

// Station is a named stop. The name is its identity for routing.
type Station struct {
	ID   uint64 `msgpack:"id" json:"id"`
	Name string `msgpack:"name" json:"name"`
}

// Connection links two stations on one train line. The pair is unordered
// for routing purposes; Station1ID is the earlier stop in the line's listing.
type Connection struct {
	TrainLineID uint64 `msgpack:"train_line_id"`
	Station1ID  uint64 `msgpack:"station1_id"`
	Station2ID  uint64 `msgpack:"station2_id"`
}

// Card is a prepaid fare card.
type Card struct {
	ID           uint64 `msgpack:"id"`
	Number       string `msgpack:"number"`
	BalanceCents int64  `msgpack:"balance_cents"`
}

// RideAction tells whether a ride log entry is an entry or an exit.
type RideAction string

const (
	RideEnter RideAction = "enter"
	RideExit  RideAction = "exit"
)

// Ride is one entry in a card's ride log.
type Ride struct {
	ID         string     `msgpack:"id"`
	CardNumber string     `msgpack:"card_number"`
	Station    string     `msgpack:"station"`
	Action     RideAction `msgpack:"action"`
	FareCents  int64      `msgpack:"fare_cents"`
	At         time.Time  `msgpack:"at"`
}
