// Package services – TelemetryService
//
// TelemetryService records one row per public API request, whatever its
// outcome, together with the caller classification, and exposes aggregate
// counts for the internal dashboard. Writes are best effort: a failing
// telemetry store is logged and never fails the request.
package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/repo"
)

var apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "api_quote_requests_total",
	Help: "Public quote API requests by caller class and outcome.",
}, []string{"caller_class", "outcome"})

func init() {
	prometheus.MustRegister(apiRequestsTotal)
}

// TelemetryRepo defines the repository contract required by
// TelemetryService.
type TelemetryRepo interface {
	CreateRequestLog(ctx context.Context, db *gorm.DB, l *domain.APIRequestLog) error
	CountRequestsByCaller(ctx context.Context, db *gorm.DB, since time.Time) ([]repo.CallerCount, error)
}

// TelemetryService stores request logs.
type TelemetryService struct {
	DB           *gorm.DB
	Repo         TelemetryRepo
	WriteTimeout time.Duration
}

// NewTelemetryService constructs a TelemetryService with a 2s write bound.
func NewTelemetryService(db *gorm.DB, r TelemetryRepo) *TelemetryService {
	return &TelemetryService{DB: db, Repo: r, WriteTimeout: 2 * time.Second}
}

// Record stores l. The write is detached from ctx cancellation so a client
// hanging up does not lose the row.
func (s *TelemetryService) Record(ctx context.Context, l domain.APIRequestLog) {
	apiRequestsTotal.WithLabelValues(string(l.CallerClass), l.Outcome).Inc()
	if s == nil || s.Repo == nil {
		return
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	timeout := s.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.Repo.CreateRequestLog(wctx, s.DB, &l); err != nil {
		logger(ctx).Warn().Err(err).Str("outcome", l.Outcome).Msg("request telemetry not stored")
	}
}

// CallerStats returns request counts grouped by caller class and outcome
// since the given time.
func (s *TelemetryService) CallerStats(ctx context.Context, since time.Time) ([]repo.CallerCount, error) {
	ctx, span := otel.Tracer("services/TelemetryService").Start(ctx, "CallerStats",
		trace.WithAttributes(attribute.String("since", since.UTC().Format(time.RFC3339))))
	defer span.End()
	return s.Repo.CountRequestsByCaller(ctx, s.DB, since)
}
