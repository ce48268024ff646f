package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cellardesk/cellar-cli/internal/backfill"
	"github.com/cellardesk/cellar-cli/internal/db"
	"github.com/cellardesk/cellar-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// New creates a PostgresStore on an existing pool. Used by tests with a
// pgxmock pool.
func New(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect creates a PostgresStore with its own connection pool.
func Connect(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS wines (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	vintage_year INT NOT NULL,
	color        TEXT NOT NULL,
	grapes       TEXT[] NOT NULL DEFAULT '{}',
	region       TEXT NOT NULL DEFAULT '',
	appellation  TEXT,
	rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
	in_stock     BOOLEAN NOT NULL DEFAULT true,
	body         INT,
	tannin       INT,
	acidity      INT,
	oak          INT,
	sweetness    INT,
	profile_confidence TEXT,
	profile_source     TEXT
);

CREATE TABLE IF NOT EXISTS readiness_results (
	wine_id            BIGINT PRIMARY KEY REFERENCES wines(id) ON DELETE CASCADE,
	score              INT NOT NULL,
	status             TEXT NOT NULL,
	drink_window_start INT NOT NULL,
	drink_window_end   INT NOT NULL,
	confidence         TEXT NOT NULL,
	reasons            JSONB NOT NULL DEFAULT '[]',
	algorithm_version  INT NOT NULL,
	computed_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS backfill_jobs (
	id                         TEXT PRIMARY KEY,
	mode                       TEXT NOT NULL,
	cursor                     TEXT,
	processed                  INT NOT NULL DEFAULT 0,
	updated                    INT NOT NULL DEFAULT 0,
	skipped                    INT NOT NULL DEFAULT 0,
	failed                     INT NOT NULL DEFAULT 0,
	failures                   JSONB NOT NULL DEFAULT '[]',
	status                     TEXT NOT NULL,
	algorithm_version_at_start INT NOT NULL,
	cancel_requested           BOOLEAN NOT NULL DEFAULT false,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_wines_in_stock ON wines(in_stock);
CREATE INDEX IF NOT EXISTS idx_readiness_algorithm_version ON readiness_results(algorithm_version);

-- Backstop for the single-writer invariant: at most one running job row
-- can ever exist, even under concurrent claim attempts.
CREATE UNIQUE INDEX IF NOT EXISTS idx_backfill_jobs_single_running
	ON backfill_jobs(status) WHERE status = 'running';
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ListWines pages wine rows in id order, strictly after cursor, filtered by
// backfill mode against algorithmVersion.
func (s *PostgresStore) ListWines(ctx context.Context, mode model.BackfillMode, algorithmVersion int, cursor *string, limit int) ([]backfill.WineRow, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT w.id, w.name, w.vintage_year, w.color, w.grapes, w.region, w.appellation,
		       r.algorithm_version
		FROM wines w
		LEFT JOIN readiness_results r ON r.wine_id = w.id
		WHERE w.id > $1`
	args := []any{after}

	switch mode {
	case model.ModeMissingOnly:
		query += ` AND r.wine_id IS NULL`
	case model.ModeStaleOrMissing:
		query += ` AND (r.wine_id IS NULL OR r.algorithm_version <> $2)`
		args = append(args, algorithmVersion)
	}

	query += fmt.Sprintf(` ORDER BY w.id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wines")
	}
	defer rows.Close()

	var out []backfill.WineRow
	for rows.Next() {
		var wr backfill.WineRow
		if err := rows.Scan(
			&wr.Wine.ID, &wr.Wine.Name, &wr.Wine.VintageYear, &wr.Wine.Color,
			&wr.Wine.Grapes, &wr.Wine.Region, &wr.Wine.Appellation,
			&wr.ExistingVersion,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan wine row")
		}
		out = append(out, wr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate wines")
}

func (s *PostgresStore) GetWine(ctx context.Context, id int64) (*model.WineRecord, error) {
	var w model.WineRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, vintage_year, color, grapes, region, appellation
		FROM wines WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &w.VintageYear, &w.Color, &w.Grapes, &w.Region, &w.Appellation)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, backfill.ErrWineNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get wine %d", id)
	}
	return &w, nil
}

// SaveReadiness writes the result whole, replacing any previous row for the
// wine.
func (s *PostgresStore) SaveReadiness(ctx context.Context, wineID int64, res model.ReadinessResult) error {
	reasons, err := json.Marshal(res.Reasons)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal reasons for wine %d", wineID)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO readiness_results
			(wine_id, score, status, drink_window_start, drink_window_end,
			 confidence, reasons, algorithm_version, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (wine_id) DO UPDATE SET
			score = EXCLUDED.score,
			status = EXCLUDED.status,
			drink_window_start = EXCLUDED.drink_window_start,
			drink_window_end = EXCLUDED.drink_window_end,
			confidence = EXCLUDED.confidence,
			reasons = EXCLUDED.reasons,
			algorithm_version = EXCLUDED.algorithm_version,
			computed_at = now()`,
		wineID, res.Score, string(res.Status), res.DrinkWindowStart, res.DrinkWindowEnd,
		string(res.Confidence), reasons, res.AlgorithmVersion,
	)
	return eris.Wrapf(err, "postgres: save readiness for wine %d", wineID)
}

// GetInStockBottles returns in-stock bottles with their stored profile and
// readiness result where present.
func (s *PostgresStore) GetInStockBottles(ctx context.Context) ([]model.Bottle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.name, w.vintage_year, w.color, w.grapes, w.region, w.appellation,
		       w.rating, w.in_stock,
		       w.body, w.tannin, w.acidity, w.oak, w.sweetness,
		       w.profile_confidence, w.profile_source,
		       r.score, r.status, r.drink_window_start, r.drink_window_end,
		       r.confidence, r.reasons, r.algorithm_version
		FROM wines w
		LEFT JOIN readiness_results r ON r.wine_id = w.id
		WHERE w.in_stock
		ORDER BY w.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get in-stock bottles")
	}
	defer rows.Close()

	var bottles []model.Bottle
	for rows.Next() {
		b, err := scanBottle(rows)
		if err != nil {
			return nil, err
		}
		bottles = append(bottles, *b)
	}
	return bottles, eris.Wrap(rows.Err(), "postgres: iterate bottles")
}

func scanBottle(rows pgx.Rows) (*model.Bottle, error) {
	var (
		b                                  model.Bottle
		body, tannin, acidity, oak, sweet  *int
		profConf, profSrc                  *string
		score, winStart, winEnd, algoVer   *int
		status, resConf                    *string
		reasonsJSON                        []byte
	)
	err := rows.Scan(
		&b.Wine.ID, &b.Wine.Name, &b.Wine.VintageYear, &b.Wine.Color,
		&b.Wine.Grapes, &b.Wine.Region, &b.Wine.Appellation,
		&b.Rating, &b.InStock,
		&body, &tannin, &acidity, &oak, &sweet,
		&profConf, &profSrc,
		&score, &status, &winStart, &winEnd,
		&resConf, &reasonsJSON, &algoVer,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan bottle")
	}
	b.ID = b.Wine.ID

	if body != nil && tannin != nil && acidity != nil && oak != nil && sweet != nil {
		conf, src := model.ConfidenceMed, model.ProfileSourceAI
		if profConf != nil {
			conf = model.Confidence(*profConf)
		}
		if profSrc != nil {
			src = model.ProfileSource(*profSrc)
		}
		// NewStructuralProfile re-derives power; the stored axes are
		// authoritative, power never is.
		p := model.NewStructuralProfile(*body, *tannin, *acidity, *oak, *sweet, conf, src)
		b.Profile = &p
	}

	if score != nil && status != nil && winStart != nil && winEnd != nil && algoVer != nil {
		res := model.ReadinessResult{
			Score:            *score,
			Status:           model.ReadinessStatus(*status),
			DrinkWindowStart: *winStart,
			DrinkWindowEnd:   *winEnd,
			AlgorithmVersion: *algoVer,
		}
		if resConf != nil {
			res.Confidence = model.Confidence(*resConf)
		}
		if len(reasonsJSON) > 0 {
			if err := json.Unmarshal(reasonsJSON, &res.Reasons); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal reasons for wine %d", b.Wine.ID)
			}
		}
		b.Readiness = &res
	}
	return &b, nil
}

// ClaimJob inserts the job only when no other job is running. The
// conditional insert plus the partial unique index makes the claim atomic
// under concurrent starts.
func (s *PostgresStore) ClaimJob(ctx context.Context, job *model.BackfillJob) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO backfill_jobs
			(id, mode, status, algorithm_version_at_start, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (SELECT 1 FROM backfill_jobs WHERE status = 'running')`,
		job.ID, string(job.Mode), string(job.Status), job.AlgorithmVersionAtStart,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: claim job")
	}
	if tag.RowsAffected() == 0 {
		return backfill.ErrJobAlreadyRunning
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.BackfillJob, error) {
	var (
		j            model.BackfillJob
		failuresJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, mode, cursor, processed, updated, skipped, failed, failures,
		       status, algorithm_version_at_start, cancel_requested, created_at, updated_at
		FROM backfill_jobs WHERE id = $1`, id,
	).Scan(
		&j.ID, &j.Mode, &j.Cursor, &j.Processed, &j.Updated, &j.Skipped, &j.Failed,
		&failuresJSON, &j.Status, &j.AlgorithmVersionAtStart, &j.CancelRequested,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, backfill.ErrJobNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &j.Failures); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal failures for job %s", id)
		}
	}
	return &j, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, job *model.BackfillJob) error {
	failures, err := json.Marshal(job.Failures)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal failures for job %s", job.ID)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE backfill_jobs
		SET cursor = $1, processed = $2, updated = $3, skipped = $4, failed = $5,
		    failures = $6, status = $7, updated_at = $8
		WHERE id = $9`,
		job.Cursor, job.Processed, job.Updated, job.Skipped, job.Failed,
		failures, string(job.Status), job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return backfill.ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id string, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backfill_jobs SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return backfill.ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) RequestCancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backfill_jobs SET cancel_requested = true, updated_at = now()
		WHERE id = $1 AND status = 'running'`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: request cancel for job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: job %s is not running", id)
	}
	return nil
}

// decodeCursor parses the opaque cursor into the last-seen wine id. A nil
// cursor starts from the beginning.
func decodeCursor(cursor *string) (int64, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(*cursor, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "store: malformed cursor %q", *cursor)
	}
	return id, nil
}
