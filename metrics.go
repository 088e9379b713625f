package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for operation metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors for auth operations. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates the auth metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialbridge_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trialbridge_auth_operation_duration_seconds",
				Help:    "Auth operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Operations, m.Duration)
	}

	return m
}

func (m *Metrics) observe(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcomeOf(err)).Inc()
	m.Duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// outcomeOf separates caller mistakes from service failures.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case HasTextCode(err, TextCodeServiceFailure):
		return OutcomeError
	default:
		var rejected bool
		for _, code := range []string{
			TextCodeDuplicateEmail,
			TextCodeInvalidCredentials,
			TextCodeInvalidOrExpiredCode,
			TextCodeValidation,
			TextCodeForbidden,
		} {
			if HasTextCode(err, code) {
				rejected = true
				break
			}
		}
		if rejected || IsTokenError(err) {
			return OutcomeRejected
		}
		return OutcomeError
	}
}
