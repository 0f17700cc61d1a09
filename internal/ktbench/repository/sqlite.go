package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/G-Research/ktbench/internal/ktbench/configuration"
)

// Record is the outcome of one collected run.
type Record struct {
	// Id of the sweep the run belongs to.
	RunId string
	// "local" or "remote".
	Mode  string
	Point configuration.SweepPoint
	// Number of log files collected per role.
	ClientLogs int
	IdpLogs    int
	ShardLogs  int
	LogBytes   int64
	// File the parser's summary was appended to.
	ResultFile string
	Timestamp  time.Time
}

// SQLiteResults indexes the results of every run, across sweeps, in a SQLite database.
type SQLiteResults struct {
	db   *sql.DB
	lock sync.Mutex
}

// NewSQLiteResults opens (or creates) the database at path. The returned func closes it.
func NewSQLiteResults(path string, log *log.Entry) (*SQLiteResults, func(), error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, func() {}, errors.Wrapf(err, "could not make directory at %s for sqlite db", dbDir)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, func() {}, errors.Wrapf(err, "error opening sqlite db from %s", path)
	}
	return &SQLiteResults{db: db}, func() {
		if err := db.Close(); err != nil {
			log.Warnf("error closing database: %v", err)
		}
	}, nil
}

// Setup creates the results table if it doesn't exist. Results of previous sweeps are kept.
func (s *SQLiteResults) Setup(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS results (
			RunId TEXT,
			Mode TEXT,
			Faults INT,
			Nodes INT,
			Shards INT,
			Collocate INT,
			Rate INT,
			Run INT,
			ClientLogs INT,
			IdpLogs INT,
			ShardLogs INT,
			LogBytes INT,
			ResultFile TEXT,
			Timestamp INT,
			PRIMARY KEY(RunId, Faults, Nodes, Shards, Collocate, Rate, Run))`)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_results_point ON results (Faults, Nodes, Shards, Collocate, Rate)`)
	return errors.WithStack(err)
}

// Record inserts r, replacing a previous record of the same run.
func (s *SQLiteResults) Record(ctx context.Context, r *Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO results VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.RunId, r.Mode,
		r.Point.Faults, r.Point.Nodes, r.Point.Shards, r.Point.Collocate, r.Point.Rate, r.Point.Run,
		r.ClientLogs, r.IdpLogs, r.ShardLogs, r.LogBytes,
		r.ResultFile, r.Timestamp.Unix(),
	)
	return errors.WithStack(err)
}

// Records returns every record of the sweep point, ignoring the run index, oldest first.
func (s *SQLiteResults) Records(ctx context.Context, point configuration.SweepPoint) ([]*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT RunId, Mode, Faults, Nodes, Shards, Collocate, Rate, Run, ClientLogs, IdpLogs, ShardLogs, LogBytes, ResultFile, Timestamp
		FROM results
		WHERE Faults = ? AND Nodes = ? AND Shards = ? AND Collocate = ? AND Rate = ?
		ORDER BY Timestamp, RunId, Run`,
		point.Faults, point.Nodes, point.Shards, point.Collocate, point.Rate)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var timestamp int64
		if err := rows.Scan(
			&r.RunId, &r.Mode,
			&r.Point.Faults, &r.Point.Nodes, &r.Point.Shards, &r.Point.Collocate, &r.Point.Rate, &r.Point.Run,
			&r.ClientLogs, &r.IdpLogs, &r.ShardLogs, &r.LogBytes,
			&r.ResultFile, &timestamp,
		); err != nil {
			return nil, errors.WithStack(err)
		}
		r.Timestamp = time.Unix(timestamp, 0)
		records = append(records, r)
	}
	return records, errors.WithStack(rows.Err())
}
