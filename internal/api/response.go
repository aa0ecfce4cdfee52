package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/subway/internal/fare"
	"github.com/gyaneshwarpardhi/subway/internal/store"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type messageResponse struct {
	Message string `json:"message"`
}

type routeResponse struct {
	Route []string `json:"route"`
}

type balanceResponse struct {
	Amount float64 `json:"amount"`
}

type cardJSON struct {
	ID      uint64  `json:"id"`
	Number  string  `json:"number"`
	Balance float64 `json:"balance"`
}

func toCardJSON(c *store.Card) cardJSON {
	return cardJSON{ID: c.ID, Number: c.Number, Balance: fare.FromCents(c.BalanceCents)}
}

type cardResponse struct {
	Message string   `json:"message"`
	Card    cardJSON `json:"card"`
}

type rideJSON struct {
	ID      string    `json:"id"`
	Station string    `json:"station"`
	Action  string    `json:"action"`
	Fare    float64   `json:"fare"`
	At      time.Time `json:"at"`
}

type ridesResponse struct {
	Card  cardJSON   `json:"card"`
	Rides []rideJSON `json:"rides"`
}

type lineJSON struct {
	ID   uint64  `json:"id"`
	Name string  `json:"name"`
	Fare float64 `json:"fare"`
}
