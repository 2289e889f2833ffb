package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	expiryJobName    = "booking_expiry_sweep"
	expiryBatchSize  = 200
	expiryMaxBatches = 50
	expiryJobTimeout = 50 * time.Second
)

// Expirer releases PENDING_PAYMENT bookings whose payment deadline passed.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// RegisterExpiryJobs registers the expiry sweep on the singleton scheduler.
func RegisterExpiryJobs(expirer Expirer, cronExpr string) error {
	svc, err := ServiceInstance()
	if err != nil {
		return err
	}
	return svc.RegisterExpiryJobs(expirer, cronExpr)
}

func (s *Service) RegisterExpiryJobs(expirer Expirer, cronExpr string) error {
	if expirer == nil {
		return fmt.Errorf("expiry jobs require a booking service")
	}
	jobLogger := log.With().
		Str("component", "booking_expiry_job").
		Str("job_name", expiryJobName).
		Str("cron", cronExpr).
		Logger()

	_, err := s.AddJob(expiryJobName, cronExpr, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), expiryJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		_, err := SweepExpired(ctx, expirer, &jobLogger)
		return err
	})
	return err
}

// SweepExpired expires due bookings in batches until a batch comes back short.
func SweepExpired(ctx context.Context, expirer Expirer, logger *zerolog.Logger) (int, error) {
	total := 0
	for batch := 0; batch < expiryMaxBatches; batch++ {
		n, err := expirer.ExpireDue(ctx, expiryBatchSize)
		total += n
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				logger.Warn().Int("expired", total).Msg("Expiry sweep interrupted")
				return total, nil
			}
			return total, fmt.Errorf("expire due bookings: %w", err)
		}
		if n < expiryBatchSize {
			break
		}
	}
	if total > 0 {
		logger.Info().Int("expired", total).Msg("Expired overdue bookings")
	} else {
		logger.Debug().Msg("No overdue bookings")
	}
	return total, nil
}
