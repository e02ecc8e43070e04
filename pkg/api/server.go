// Package api tfrec REST API
//
// @title           tfrec REST API
// @version         1.0.0
// @description     HTTP access to a checksummed record stream.
// @host            localhost:8080
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/swaggo/swag"
	"gopkg.in/yaml.v3"
)

const (
	metricsUpdateInterval = 30 * time.Second
	shutdownTimeout       = 10 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// NewRouter builds the HTTP routes for server. Metrics are served from
// gatherer.
func NewRouter(server *Server, gatherer prometheus.Gatherer) http.Handler {
	metrics := server.metrics

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(server.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Record-Offset", "X-Record-Length", "X-Record-Checksum"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// Records
		r.Post("/records", metrics.InstrumentHandler("POST", "/api/v1/records", server.handleAppend))
		r.Get("/records", metrics.InstrumentHandler("GET", "/api/v1/records", server.handleListRecords))
		r.Get("/records/{offset}", metrics.InstrumentHandler("GET", "/api/v1/records/{offset}", server.handleGetRecord))

		// Codec
		r.Post("/verify", metrics.InstrumentHandler("POST", "/api/v1/verify", server.handleVerify))
		r.Post("/encode", metrics.InstrumentHandler("POST", "/api/v1/encode", server.handleEncode))

		// Diagnostics
		r.Get("/stats", metrics.InstrumentHandler("GET", "/api/v1/stats", server.handleStats))
	})

	// Swagger documentation (unprotected)
	r.Get("/swagger/*", server.handleSwagger)

	return r
}

const swaggerUI = `<!DOCTYPE html>
<html>
<head>
	 <title>tfrec API Documentation</title>
	 <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui.css" />
</head>
<body>
	 <div id="swagger-ui"></div>
	 <script src="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui-bundle.js"></script>
	 <script>
	   window.onload = function() {
	     SwaggerUIBundle({
	       url: '/swagger/swagger.json',
	       dom_id: '#swagger-ui',
	       presets: [
	         SwaggerUIBundle.presets.apis,
	         SwaggerUIBundle.presets.standalone
	       ]
	     });
	   };
	 </script>
</body>
</html>`

// handleSwagger serves the Swagger UI and the registered API description
func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/swagger/", "/swagger/index.html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(swaggerUI))

	case "/swagger/swagger.json":
		doc, err := swag.ReadDoc(swaggerInstance)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to read swagger doc")
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))

	case "/swagger/swagger.yaml":
		doc, err := swaggerYAML()
		if err != nil {
			s.log.Error().Err(err).Msg("failed to convert swagger doc")
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(doc)

	default:
		http.NotFound(w, r)
	}
}

// swaggerYAML renders the registered API description as YAML
func swaggerYAML() ([]byte, error) {
	doc, err := swag.ReadDoc(swaggerInstance)
	if err != nil {
		return nil, err
	}
	var tree interface{}
	if err := yaml.Unmarshal([]byte(doc), &tree); err != nil {
		return nil, errors.Wrap(err, "swagger doc is not valid JSON")
	}
	return yaml.Marshal(tree)
}

// StartServer listens on the configured address and serves the API until ctx
// is cancelled
func StartServer(ctx context.Context, stream IRecordStream, config ServerConfig, log zerolog.Logger) error {
	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return Serve(ctx, listener, stream, config, log)
}

// Serve serves the API on listener until ctx is cancelled, then shuts down
// gracefully. The listener is closed on return.
func Serve(ctx context.Context, listener net.Listener, stream IRecordStream, config ServerConfig, log zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := NewMetrics(registry)
	server := NewServer(stream, config, metrics, log)

	stats := stream.Stats()
	metrics.UpdateStreamStats(stats.Records, stats.DataSize)

	httpServer := &http.Server{
		Handler:           NewRouter(server, registry),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start background metrics updater
	go server.startMetricsUpdater(ctx, metricsUpdateInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	log.Info().
		Str("addr", listener.Addr().String()).
		Bool("auth", config.APIKey != "").
		Msg("serving tfrec REST API")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down REST API")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}
