package core

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dfinance/dvm-sub000/internal/metrics"
)

// NewDebugRouter builds the in-process debug HTTP surface (§1 "RPC
// transport is an external collaborator" leaves the real wire protocol
// out of scope, but operators still need something to point curl at).
// It exposes the live metrics snapshot as JSON, the same data a
// Prometheus exporter would scrape, without building a full exposition
// format. Grounded on the teacher's walletserver/routes package shape
// (one mux.Router, one handler per route), generalized from wallet
// REST endpoints to a single read-only metrics endpoint.
func NewDebugRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(debugLogger)
	r.HandleFunc("/metrics", handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	return r
}

func debugLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.WithField("path", r.URL.Path).Debug("debug surface request")
		next.ServeHTTP(w, r)
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := metrics.Global().Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
