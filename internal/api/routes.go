package api

import (
	"github.com/gorilla/mux"

	"github.com/stockreturns/portfolio-service/internal/metrics"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Transaction routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transactions", handler.RecordTransaction).Methods("POST")
	api.HandleFunc("/transactions/{investorID}", handler.GetTransactions).Methods("GET")

	// Portfolio routes
	api.HandleFunc("/portfolio/{investorID}", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/{investorID}/{ticker}", handler.GetTickerPositions).Methods("GET")
	api.HandleFunc("/portfolio/{investorID}/{ticker}/{positionType}", handler.GetPosition).Methods("GET")

	// Price and OHLCV routes
	api.HandleFunc("/price/{ticker}", handler.GetLastPrice).Methods("GET")
	api.HandleFunc("/ohlcv", handler.SaveBar).Methods("POST")
	api.HandleFunc("/ohlcv/{ticker}/gaps", handler.GetTickerGap).Methods("GET")
	api.HandleFunc("/ohlcv/{ticker}", handler.GetBars).Methods("GET")

	return r
}
