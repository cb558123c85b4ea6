package poolmonitor

import (
	"context"
	"database/sql"
)

// SQLPoolSource adapts a database/sql.DB's stats into a PoolSource.
// database/sql does not expose waiting-connection or timeout counters
// directly: Waiting is the cumulative sql.DBStats.WaitCount, and Timeouts
// is approximated as the connections closed for exceeding MaxIdleTime or
// MaxLifetime.
type SQLPoolSource struct {
	DB *sql.DB
}

func NewSQLPoolSource(db *sql.DB) *SQLPoolSource {
	return &SQLPoolSource{DB: db}
}

func (s *SQLPoolSource) Sample(ctx context.Context) (Sample, error) {
	stats := s.DB.Stats()
	return Sample{
		Active:   stats.InUse,
		Idle:     stats.Idle,
		Total:    stats.OpenConnections,
		Waiting:  int(stats.WaitCount),
		Max:      stats.MaxOpenConnections,
		Timeouts: int(stats.MaxIdleTimeClosed + stats.MaxLifetimeClosed),
	}, nil
}
