package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// orderNumberWidth is the zero-padded width of purchase-order numbers.
const orderNumberWidth = 8

// OrderNumberSource issues sequential purchase-order numbers backed by a
// PostgreSQL sequence, so two concurrent creations can never collide.
type OrderNumberSource struct {
	DB     *sql.DB
	tp     TimeProvider
	logger *slog.Logger
}

// NewOrderNumberSource creates an OrderNumberSource.
func NewOrderNumberSource(db *sql.DB, cfg RepoConfig) *OrderNumberSource {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &OrderNumberSource{DB: db, tp: tp, logger: cfg.Logger}
}

// Next returns the next purchase-order number as an 8-character zero-padded
// decimal string. On sequence failure it falls back to a timestamp-derived
// value rather than blocking job creation; the fallback is logged because it
// weakens the strictly-increasing guarantee.
func (s *OrderNumberSource) Next(ctx context.Context) (string, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT nextval('job_order_number_seq')`).Scan(&n)
	if err != nil {
		fallback := s.tp.Now().UTC().Unix() % 100_000_000
		if s.logger != nil {
			s.logger.WarnContext(ctx, "order number sequence unavailable, using timestamp fallback",
				"error", err, "fallback", fallback)
		}
		return fmt.Sprintf("%0*d", orderNumberWidth, fallback), nil
	}
	return fmt.Sprintf("%0*d", orderNumberWidth, n), nil
}
