package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	recoverMiddleware "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "pybridge_gateway"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Cache metrics. Keys are collapsed to their root segment to keep label
// cardinality bounded.
var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_hits_total",
			Help: "Cache reads served fresh from memory",
		},
		[]string{"resource"},
	)

	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_misses_total",
			Help: "Cache reads that fetched inline",
		},
		[]string{"resource"},
	)

	cacheStaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_stale_serves_total",
			Help: "Cache reads served stale while revalidating in the background",
		},
		[]string{"resource"},
	)
)

// Upstream metrics
var (
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Upstream API requests by method and status",
		},
		[]string{"method", "status"},
	)

	upstreamFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_failures_total",
			Help: "Upstream requests that failed at the transport layer",
		},
		[]string{"method"},
	)
)

// Mutation and chat metrics
var (
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutations_total",
			Help: "Optimistic mutations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	chatStreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Tutor chat streams currently being consumed",
		},
	)
)

func recordCacheHit(key string) {
	cacheHitsTotal.WithLabelValues(keyRoot(key)).Inc()
}

func recordCacheMiss(key string) {
	cacheMissesTotal.WithLabelValues(keyRoot(key)).Inc()
}

func recordCacheStaleServe(key string) {
	cacheStaleServesTotal.WithLabelValues(keyRoot(key)).Inc()
}

func recordUpstreamRequest(method string, status int) {
	upstreamRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func recordUpstreamFailure(method string) {
	upstreamFailuresTotal.WithLabelValues(method).Inc()
}

func recordMutation(action string, committed bool) {
	outcome := "committed"
	if !committed {
		outcome = "rolled_back"
	}
	mutationsTotal.WithLabelValues(action, outcome).Inc()
}

func recordChatStreamStart() {
	chatStreamsActive.Inc()
}

func recordChatStreamEnd() {
	chatStreamsActive.Dec()
}

func keyRoot(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

type MonitoringService struct {
	appContext.DefaultService

	port     int
	register *prometheus.Registry
	server   *fiber.App
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Start() error {
	portStr := os.Getenv("PROMETHEUS_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DEFAULT_PROMETHEUS_PORT
	}
	svc.port = port

	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(
		cacheHitsTotal,
		cacheMissesTotal,
		cacheStaleServesTotal,
		upstreamRequestsTotal,
		upstreamFailuresTotal,
		mutationsTotal,
		chatStreamsActive,
	)

	svc.register = reg

	config := fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}

	svc.server = fiber.New(config)
	svc.server.Use(recoverMiddleware.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	// The gateway listener owns the foreground; metrics serve from the side.
	go func() {
		if err := svc.server.Listen(fmt.Sprintf(":%v", svc.port)); err != nil {
			log.Error().Err(err).Msg("Prometheus metrics server stopped")
		}
	}()

	log.Info().Int("port", svc.port).Msg("Prometheus metrics server started")
	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}
