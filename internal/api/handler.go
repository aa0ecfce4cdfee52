package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/subway/internal/config"
	"github.com/gyaneshwarpardhi/subway/internal/ctxlog"
	"github.com/gyaneshwarpardhi/subway/internal/fare"
	"github.com/gyaneshwarpardhi/subway/internal/store"
	"github.com/gyaneshwarpardhi/subway/internal/transit"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	transit  *transit.Service
	ledger   *fare.Ledger
	loader   *config.Loader
	validate *validator.Validate
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(svc *transit.Service, ledger *fare.Ledger, loader *config.Loader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		transit:  svc,
		ledger:   ledger,
		loader:   loader,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /train-line", h.addTrainLine)
	h.mux.HandleFunc("GET /train-lines", h.listTrainLines)
	h.mux.HandleFunc("GET /route", h.route)
	h.mux.HandleFunc("POST /card", h.topUpCard)
	h.mux.HandleFunc("GET /card/{number}/rides", h.cardRides)
	h.mux.HandleFunc("POST /station/{station}/enter", h.enterStation)
	h.mux.HandleFunc("POST /station/{station}/exit", h.exitStation)
	h.mux.HandleFunc("POST /admin/reload", h.reload)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(logger, h.mux)
}

type trainLineRequest struct {
	Name     string   `json:"name" validate:"required"`
	Stations []string `json:"stations" validate:"required,min=1,dive,required"`
	Fare     float64  `json:"fare" validate:"gte=0"`
}

type cardRequest struct {
	Number string  `json:"number" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

type stationRequest struct {
	CardNumber string `json:"card_number"`
}

type rideFunc func(ctx context.Context, station, number string) (*store.Card, error)

// POST /train-line: upsert a line with its stations, then rebuild the graph.
func (h *Handler) addTrainLine(w http.ResponseWriter, r *http.Request) {
	var req trainLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	fareCents, err := fare.ToCents(req.Fare)
	if err != nil || h.validate.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, "Train line name, stations and a non-negative fare are required.")
		return
	}

	_, err = h.transit.AddTrainLine(r.Context(), transit.LineSpec{
		Name:      req.Name,
		FareCents: fareCents,
		Stations:  req.Stations,
	})
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("add train line", "name", req.Name, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Train line was created successfully."})
}

// GET /train-lines
func (h *Handler) listTrainLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.transit.Lines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]lineJSON, len(lines))
	for i, l := range lines {
		out[i] = lineJSON{ID: l.ID, Name: l.Name, Fare: fare.FromCents(l.FareCents)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": out})
}

// GET /route?origin=&destination=
func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, err := h.transit.FindRoute(r.Context(), q.Get("origin"), q.Get("destination"))
	var ie *transit.InputError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, routeResponse{Route: path})
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Reason)
	case errors.Is(err, transit.ErrNoRoute):
		writeError(w, http.StatusBadRequest, "No route found")
	default:
		ctxlog.FromContext(r.Context()).Error("find route", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// POST /card: create a card or add to its balance.
func (h *Handler) topUpCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || h.validate.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, "Invalid card number or amount.")
		return
	}
	amountCents, err := fare.ToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card number or amount.")
		return
	}
	card, err := h.ledger.TopUp(r.Context(), req.Number, amountCents)
	if errors.Is(err, fare.ErrInvalidTopUp) {
		writeError(w, http.StatusBadRequest, "Invalid card number or amount.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, cardResponse{
		Message: "Card was created/updated successfully.",
		Card:    toCardJSON(card),
	})
}

// GET /card/{number}/rides
func (h *Handler) cardRides(w http.ResponseWriter, r *http.Request) {
	card, rides, err := h.ledger.Rides(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeFareError(w, r, err)
		return
	}
	out := make([]rideJSON, len(rides))
	for i, ride := range rides {
		out[i] = rideJSON{
			ID:      ride.ID,
			Station: ride.Station,
			Action:  string(ride.Action),
			Fare:    fare.FromCents(ride.FareCents),
			At:      ride.At,
		}
	}
	writeJSON(w, http.StatusOK, ridesResponse{Card: toCardJSON(card), Rides: out})
}

// POST /station/{station}/enter: charge the fare and log the ride.
func (h *Handler) enterStation(w http.ResponseWriter, r *http.Request) {
	h.stationRide(w, r, h.ledger.Enter)
}

// POST /station/{station}/exit: log the ride, no charge.
func (h *Handler) exitStation(w http.ResponseWriter, r *http.Request) {
	h.stationRide(w, r, h.ledger.Exit)
}

func (h *Handler) stationRide(w http.ResponseWriter, r *http.Request, op rideFunc) {
	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	card, err := op(r.Context(), r.PathValue("station"), req.CardNumber)
	if err != nil {
		h.writeFareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Amount: fare.FromCents(card.BalanceCents)})
}

func (h *Handler) writeFareError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fare.ErrUnknownStation):
		writeError(w, http.StatusBadRequest, "Station does not exist.")
	case errors.Is(err, fare.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "Card was not found.")
	case errors.Is(err, fare.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, "Insufficient prepaid balance.")
	case errors.Is(err, fare.ErrNoFare):
		writeError(w, http.StatusBadRequest, "Station is not served by any train line.")
	default:
		ctxlog.FromContext(r.Context()).Error("fare operation", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// POST /admin/reload: re-read the config file. Registered change callbacks
// re-seed the network and rebuild the graph; if one fails the reload is
// reported as a 500 even though the new config is in effect.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    "config validation failed",
			"problems": ve.Problems,
		})
		return
	}
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("config reload", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":    true,
		"lines_count": len(cfg.Network.Lines),
		"graph":       h.transit.Stats(),
	})
}

// GET /healthz: always 200 (liveness).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 200 once a graph has been published.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"graph":  h.transit.Stats(),
	})
}
