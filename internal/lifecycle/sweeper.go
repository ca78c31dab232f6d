package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Expirer drives one request through the expired transition, including
// whatever downstream actions follow from it.
type Expirer interface {
	ExpireRequest(ctx context.Context, requestID string) error
}

// Sweeper periodically scans non-terminal requests past their expiry date and
// expires each through the normal transition contract. There is no bypass of
// transition validation.
type Sweeper struct {
	db       *gorm.DB
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(db *gorm.DB, expirer Expirer, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		db:       db,
		expirer:  expirer,
		interval: interval,
		logger:   logger.With(zap.String("service", "expiry_sweeper")),
	}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("expired overdue signature requests", zap.Int("count", n))
			}
		}
	}
}

// SweepOnce expires every overdue request once and returns how many
// transitioned. A request that races into a terminal status between the scan
// and the transition is skipped, not treated as a failure.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var overdue []models.SignatureRequest
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.RequestStatus{models.StatusPending, models.StatusSent, models.StatusViewed}).
		Where("expiry_date < ?", time.Now().UTC()).
		Find(&overdue).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range overdue {
		if err := s.expirer.ExpireRequest(ctx, req.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			s.logger.Error("failed to expire signature request",
				zap.String("request_id", req.ID),
				zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}
