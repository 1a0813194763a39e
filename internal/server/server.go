package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/niktheblak/web-common/pkg/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/niktheblak/ruuvitag-sensor/pkg/middleware"
	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

type Service interface {
	Current(ctx context.Context) (map[ruuvitag.Address]ruuvitag.Measurement, error)
}

// New returns the HTTP handler of the measurement API. Metrics are served from
// gatherer without authentication.
func New(svc Service, gatherer prometheus.Gatherer, authenticator auth.Authenticator, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", middleware.Authenticator(latestHandler(svc, logger), authenticator))
	mux.Handle("GET /tags/{mac}", middleware.Authenticator(tagHandler(svc, logger), authenticator))
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return middleware.Logger(mux, logger)
}
