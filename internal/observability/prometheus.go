package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
)

const readHeaderTimeout = 5 * time.Second

// prometheusReader creates an OTel reader registering into registry and the
// handler that serves it.
func prometheusReader(registry *prometheus.Registry) (*promexporter.Exporter, http.Handler, error) {
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// MetricsServer serves /metrics until shut down.
type MetricsServer struct {
	srv *http.Server
	ln  net.Listener
}

// ServeMetrics starts serving handler at /metrics on addr in the background.
func ServeMetrics(addr string, handler http.Handler, logger *slog.Logger) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	ms := &MetricsServer{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout},
		ln:  ln,
	}

	go func() {
		serveErr := ms.srv.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())

	return ms, nil
}

// Addr returns the bound listen address.
func (ms *MetricsServer) Addr() string {
	return ms.ln.Addr().String()
}

// Shutdown stops the server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	if err := ms.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}

	return nil
}
