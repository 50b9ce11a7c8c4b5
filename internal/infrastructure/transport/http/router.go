package transporthttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

type healthResponse struct {
	Status       string          `json:"status"`
	Destinations map[string]bool `json:"destinations"`
}

func NewRouter(gatherer prometheus.Gatherer, clients []publisher.BrokerClient) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthHandler(clients)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// healthHandler answers 200 only when every destination is connected.
func healthHandler(clients []publisher.BrokerClient) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, healthy := publisher.ConnectionStatus(clients)

		resp := healthResponse{Status: StatusOK, Destinations: status}
		code := http.StatusOK
		if !healthy {
			resp.Status = StatusDegraded
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
