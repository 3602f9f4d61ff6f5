package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/iamwavecut/memequiz"

var (
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memequiz_updates_total",
			Help: "Total number of processed chat updates",
		},
		[]string{"status"},
	)

	updateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memequiz_update_duration_seconds",
			Help:    "Time spent processing one chat update",
			Buckets: prometheus.DefBuckets,
		},
	)

	quizAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memequiz_quiz_answers_total",
			Help: "Graded quiz answers by verdict",
		},
		[]string{"verdict"},
	)

	broadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memequiz_broadcast_deliveries_total",
			Help: "Broadcast delivery attempts by status",
		},
		[]string{"status"},
	)

	registerOnce sync.Once
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(updatesTotal, updateDuration, quizAnswersTotal, broadcastDeliveriesTotal)
	})
}

// Server exposes /metrics and owns the tracer provider.
type Server struct {
	addr     string
	bound    string
	srv      *http.Server
	provider *sdktrace.TracerProvider
	done     chan struct{}
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) Start(ctx context.Context) error {
	register()
	s.provider = sdktrace.NewTracerProvider()
	otel.SetTracerProvider(s.provider)

	if s.addr == "" {
		log.WithField("object", "Observability").Debug("metrics endpoint disabled")
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.bound = ln.Addr().String()
	s.srv = &http.Server{Addr: s.bound, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", s.bound).Info("metrics endpoint started")
	return nil
}

// Addr is the bound listen address, empty when the endpoint is disabled.
func (s *Server) Addr() string {
	return s.bound
}

func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
		<-s.done
	}
	if s.provider != nil {
		err = errors.Join(err, s.provider.Shutdown(ctx))
	}
	return err
}

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartUpdate returns a function recording the update outcome and duration.
func StartUpdate() func(status string) {
	timer := prometheus.NewTimer(updateDuration)
	return func(status string) {
		timer.ObserveDuration()
		updatesTotal.WithLabelValues(status).Inc()
	}
}

func ObserveQuizVerdict(verdict string) {
	quizAnswersTotal.WithLabelValues(verdict).Inc()
}

func ObserveDelivery(status string) {
	broadcastDeliveriesTotal.WithLabelValues(status).Inc()
}
