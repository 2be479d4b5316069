package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/stockreturns/portfolio-service/internal/analytics"
	"github.com/stockreturns/portfolio-service/internal/kafka"
	"github.com/stockreturns/portfolio-service/internal/ledger"
	"github.com/stockreturns/portfolio-service/internal/metrics"
	"github.com/stockreturns/portfolio-service/internal/models"
	"github.com/stockreturns/portfolio-service/internal/redis"
)

const (
	portfolioCacheTTL = 30 * time.Second
	lastPriceTTL      = 5 * time.Minute
)

// Store defines the durable-store operations the HTTP handlers need.
// *database.DB satisfies it.
type Store interface {
	RecordTransaction(ctx context.Context, ev *models.TransactionEvent) (*models.PortfolioEntry, error)
	GetInvestorPortfolio(ctx context.Context, investorID int) ([]*models.PortfolioEntry, error)
	GetPortfolioEntry(ctx context.Context, investorID int, ticker string, pt models.PositionType) (*models.PortfolioEntry, error)
	GetTickerPositions(ctx context.Context, investorID int, ticker string) ([]*models.PortfolioEntry, error)
	GetTransactions(ctx context.Context, investorID int) ([]*models.TransactionEvent, error)
	SaveBar(ctx context.Context, bar *models.Bar) error
	GetBars(ctx context.Context, ticker string) ([]*models.Bar, error)
	GetOpenPrices(ctx context.Context, ticker string) ([]float64, error)
	Ping() error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store    Store
	producer *kafka.Producer
	redis    *redis.Client
}

// NewHandler creates a new Handler. producer and redisClient may be nil.
func NewHandler(store Store, producer *kafka.Producer, redisClient *redis.Client) *Handler {
	return &Handler{
		store:    store,
		producer: producer,
		redis:    redisClient,
	}
}

// transactionRequest is the JSON body for POST /transactions.
type transactionRequest struct {
	InvestorID   int             `json:"investor_id"`
	Ticker       string          `json:"ticker"`
	PositionType int             `json:"position_type"`
	Action       int             `json:"action"`
	Shares       decimal.Decimal `json:"shares"`
	Price        decimal.Decimal `json:"price"`
}

// RecordTransaction handles POST /transactions. The event is stored and
// the portfolio ledger updated in one unit of work; on any error nothing
// is recorded.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Ticker == "" {
		http.Error(w, "ticker is required", http.StatusBadRequest)
		return
	}

	ev := &models.TransactionEvent{
		InvestorID:   req.InvestorID,
		Ticker:       req.Ticker,
		PositionType: models.PositionType(req.PositionType),
		Action:       models.Action(req.Action),
		Shares:       req.Shares,
		Price:        req.Price,
		Timestamp:    time.Now().UTC(),
	}

	start := time.Now()
	entry, err := h.store.RecordTransaction(r.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrMissingPriorPosition):
			metrics.TransactionsRejected.WithLabelValues("missing_prior_position").Inc()
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, ledger.ErrInvalidPositionType),
			errors.Is(err, ledger.ErrInvalidAction),
			errors.Is(err, ledger.ErrNonPositiveShares),
			errors.Is(err, ledger.ErrNonPositivePrice):
			metrics.TransactionsRejected.WithLabelValues("constraint_violation").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			metrics.TransactionsRejected.WithLabelValues("store_error").Inc()
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	metrics.ApplyLatency.Observe(time.Since(start).Seconds())
	if kind, kerr := ledger.Classify(ev.PositionType, ev.Action); kerr == nil {
		metrics.TransactionsApplied.WithLabelValues(ev.PositionType.String(), kind.String()).Inc()
	}

	// The cached snapshot no longer reflects the ledger. Live listeners
	// get the new entry over pub/sub.
	if h.redis != nil {
		h.redis.InvalidatePortfolio(r.Context(), ev.InvestorID)
		h.redis.SetLastPrice(r.Context(), ev.Ticker, ev.Price.InexactFloat64(), lastPriceTTL)
		if err := h.redis.Publish(r.Context(), redis.PortfolioUpdatesChannel, entry); err != nil {
			log.Printf("Failed to publish portfolio update to Redis: %v", err)
		}
	}

	// Publish Kafka event. The ledger is already committed, so a publish
	// failure does not fail the request.
	if h.producer != nil {
		if err := h.producer.PublishPortfolioUpdated(r.Context(), entry); err != nil {
			log.Printf("Failed to publish portfolio update: %v", err)
		}
	}

	respondJSON(w, http.StatusCreated, entry)
}

// GetPortfolio handles GET /portfolio/{investorID}
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	investorID, err := investorIDVar(r)
	if err != nil {
		http.Error(w, "invalid investor id", http.StatusBadRequest)
		return
	}

	if h.redis != nil {
		if cached, err := h.redis.GetPortfolio(r.Context(), investorID); err == nil {
			metrics.CacheHits.WithLabelValues("hit").Inc()
			respondJSON(w, http.StatusOK, cached)
			return
		}
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	entries, err := h.store.GetInvestorPortfolio(r.Context(), investorID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.PortfolioEntry{}
	}

	if h.redis != nil {
		h.redis.SetPortfolio(r.Context(), investorID, entries, portfolioCacheTTL)
	}

	respondJSON(w, http.StatusOK, entries)
}

// GetTickerPositions handles GET /portfolio/{investorID}/{ticker}
func (h *Handler) GetTickerPositions(w http.ResponseWriter, r *http.Request) {
	investorID, err := investorIDVar(r)
	if err != nil {
		http.Error(w, "invalid investor id", http.StatusBadRequest)
		return
	}
	ticker := mux.Vars(r)["ticker"]

	entries, err := h.store.GetTickerPositions(r.Context(), investorID, ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "no positions for ticker: "+ticker, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// GetPosition handles GET /portfolio/{investorID}/{ticker}/{positionType}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	investorID, err := investorIDVar(r)
	if err != nil {
		http.Error(w, "invalid investor id", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	ticker := vars["ticker"]
	ptRaw, err := strconv.Atoi(vars["positionType"])
	pt := models.PositionType(ptRaw)
	if err != nil || !pt.Valid() {
		http.Error(w, "position type must be 1 (long) or -1 (short)", http.StatusBadRequest)
		return
	}

	entry, err := h.store.GetPortfolioEntry(r.Context(), investorID, ticker, pt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "no position for key", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

// GetLastPrice handles GET /price/{ticker}. The cached last trade price
// is served when present; otherwise the close of the most recent stored
// bar is used.
func (h *Handler) GetLastPrice(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	if h.redis != nil {
		if price, err := h.redis.GetLastPrice(r.Context(), ticker); err == nil {
			metrics.CacheHits.WithLabelValues("hit").Inc()
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"ticker": ticker,
				"price":  price,
				"source": "trade",
			})
			return
		}
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	bars, err := h.store.GetBars(r.Context(), ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Close != nil {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"ticker": ticker,
				"price":  *bars[i].Close,
				"source": "bar",
			})
			return
		}
	}

	http.Error(w, "no price for ticker: "+ticker, http.StatusNotFound)
}

// GetTransactions handles GET /transactions/{investorID}
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	investorID, err := investorIDVar(r)
	if err != nil {
		http.Error(w, "invalid investor id", http.StatusBadRequest)
		return
	}

	events, err := h.store.GetTransactions(r.Context(), investorID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.TransactionEvent{}
	}

	respondJSON(w, http.StatusOK, events)
}

// SaveBar handles POST /ohlcv
func (h *Handler) SaveBar(w http.ResponseWriter, r *http.Request) {
	var bar models.Bar
	if err := json.NewDecoder(r.Body).Decode(&bar); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if bar.Ticker == "" || bar.Datetime.IsZero() {
		http.Error(w, "ticker and datetime are required", http.StatusBadRequest)
		return
	}

	if err := h.store.SaveBar(r.Context(), &bar); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, bar)
}

// GetBars handles GET /ohlcv/{ticker}
func (h *Handler) GetBars(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	bars, err := h.store.GetBars(r.Context(), ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if bars == nil {
		bars = []*models.Bar{}
	}

	respondJSON(w, http.StatusOK, bars)
}

// GetTickerGap handles GET /ohlcv/{ticker}/gaps
func (h *Handler) GetTickerGap(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	gap, err := analytics.TickerGap(r.Context(), h.store, ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":          ticker,
		"longest_nan_run": gap,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	// Check database
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	// Check Kafka producer
	if h.producer != nil {
		services["kafka"] = "configured"
	} else {
		services["kafka"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

func investorIDVar(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["investorID"])
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
