package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cellardesk/cellar-cli/internal/backfill"
	"github.com/cellardesk/cellar-cli/internal/model"
)

// SQLiteStore mirrors PostgresStore on an embedded database. It serves the
// single-binary deployment and offline development; semantics match the
// Postgres store exactly, including the single-running-job claim.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// modernc.org/sqlite is not safe for concurrent writers on one
	// connection; serialize through the pool.
	d.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := d.Exec(pragma); err != nil {
			d.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", strings.TrimSuffix(pragma, ";"))
		}
	}
	return &SQLiteStore{db: d}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS wines (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL DEFAULT '',
	vintage_year INTEGER NOT NULL,
	color        TEXT NOT NULL,
	grapes       TEXT NOT NULL DEFAULT '[]',
	region       TEXT NOT NULL DEFAULT '',
	appellation  TEXT,
	rating       REAL NOT NULL DEFAULT 0,
	in_stock     INTEGER NOT NULL DEFAULT 1,
	body         INTEGER,
	tannin       INTEGER,
	acidity      INTEGER,
	oak          INTEGER,
	sweetness    INTEGER,
	profile_confidence TEXT,
	profile_source     TEXT
);

CREATE TABLE IF NOT EXISTS readiness_results (
	wine_id            INTEGER PRIMARY KEY REFERENCES wines(id) ON DELETE CASCADE,
	score              INTEGER NOT NULL,
	status             TEXT NOT NULL,
	drink_window_start INTEGER NOT NULL,
	drink_window_end   INTEGER NOT NULL,
	confidence         TEXT NOT NULL,
	reasons            TEXT NOT NULL DEFAULT '[]',
	algorithm_version  INTEGER NOT NULL,
	computed_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS backfill_jobs (
	id                         TEXT PRIMARY KEY,
	mode                       TEXT NOT NULL,
	cursor                     TEXT,
	processed                  INTEGER NOT NULL DEFAULT 0,
	updated                    INTEGER NOT NULL DEFAULT 0,
	skipped                    INTEGER NOT NULL DEFAULT 0,
	failed                     INTEGER NOT NULL DEFAULT 0,
	failures                   TEXT NOT NULL DEFAULT '[]',
	status                     TEXT NOT NULL,
	algorithm_version_at_start INTEGER NOT NULL,
	cancel_requested           INTEGER NOT NULL DEFAULT 0,
	created_at                 TEXT NOT NULL,
	updated_at                 TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wines_in_stock ON wines(in_stock);
CREATE UNIQUE INDEX IF NOT EXISTS idx_backfill_jobs_single_running
	ON backfill_jobs(status) WHERE status = 'running';
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) ListWines(ctx context.Context, mode model.BackfillMode, algorithmVersion int, cursor *string, limit int) ([]backfill.WineRow, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT w.id, w.name, w.vintage_year, w.color, w.grapes, w.region, w.appellation,
		       r.algorithm_version
		FROM wines w
		LEFT JOIN readiness_results r ON r.wine_id = w.id
		WHERE w.id > ?`
	args := []any{after}

	switch mode {
	case model.ModeMissingOnly:
		query += ` AND r.wine_id IS NULL`
	case model.ModeStaleOrMissing:
		query += ` AND (r.wine_id IS NULL OR r.algorithm_version <> ?)`
		args = append(args, algorithmVersion)
	}

	query += ` ORDER BY w.id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wines")
	}
	defer rows.Close()

	var out []backfill.WineRow
	for rows.Next() {
		var (
			wr         backfill.WineRow
			grapesJSON string
		)
		if err := rows.Scan(
			&wr.Wine.ID, &wr.Wine.Name, &wr.Wine.VintageYear, &wr.Wine.Color,
			&grapesJSON, &wr.Wine.Region, &wr.Wine.Appellation,
			&wr.ExistingVersion,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan wine row")
		}
		if err := json.Unmarshal([]byte(grapesJSON), &wr.Wine.Grapes); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal grapes for wine %d", wr.Wine.ID)
		}
		out = append(out, wr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate wines")
}

func (s *SQLiteStore) GetWine(ctx context.Context, id int64) (*model.WineRecord, error) {
	var (
		w          model.WineRecord
		grapesJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, vintage_year, color, grapes, region, appellation
		FROM wines WHERE id = ?`, id,
	).Scan(&w.ID, &w.Name, &w.VintageYear, &w.Color, &grapesJSON, &w.Region, &w.Appellation)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, backfill.ErrWineNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get wine %d", id)
	}
	if err := json.Unmarshal([]byte(grapesJSON), &w.Grapes); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal grapes for wine %d", id)
	}
	return &w, nil
}

func (s *SQLiteStore) SaveReadiness(ctx context.Context, wineID int64, res model.ReadinessResult) error {
	reasons, err := json.Marshal(res.Reasons)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal reasons for wine %d", wineID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readiness_results
			(wine_id, score, status, drink_window_start, drink_window_end,
			 confidence, reasons, algorithm_version, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (wine_id) DO UPDATE SET
			score = excluded.score,
			status = excluded.status,
			drink_window_start = excluded.drink_window_start,
			drink_window_end = excluded.drink_window_end,
			confidence = excluded.confidence,
			reasons = excluded.reasons,
			algorithm_version = excluded.algorithm_version,
			computed_at = datetime('now')`,
		wineID, res.Score, string(res.Status), res.DrinkWindowStart, res.DrinkWindowEnd,
		string(res.Confidence), string(reasons), res.AlgorithmVersion,
	)
	return eris.Wrapf(err, "sqlite: save readiness for wine %d", wineID)
}

func (s *SQLiteStore) GetInStockBottles(ctx context.Context) ([]model.Bottle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.vintage_year, w.color, w.grapes, w.region, w.appellation,
		       w.rating, w.in_stock,
		       w.body, w.tannin, w.acidity, w.oak, w.sweetness,
		       w.profile_confidence, w.profile_source,
		       r.score, r.status, r.drink_window_start, r.drink_window_end,
		       r.confidence, r.reasons, r.algorithm_version
		FROM wines w
		LEFT JOIN readiness_results r ON r.wine_id = w.id
		WHERE w.in_stock = 1
		ORDER BY w.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get in-stock bottles")
	}
	defer rows.Close()

	var bottles []model.Bottle
	for rows.Next() {
		var (
			b                                 model.Bottle
			grapesJSON                        string
			body, tannin, acidity, oak, sweet *int
			profConf, profSrc                 *string
			score, winStart, winEnd, algoVer  *int
			status, resConf, reasonsJSON      *string
		)
		err := rows.Scan(
			&b.Wine.ID, &b.Wine.Name, &b.Wine.VintageYear, &b.Wine.Color,
			&grapesJSON, &b.Wine.Region, &b.Wine.Appellation,
			&b.Rating, &b.InStock,
			&body, &tannin, &acidity, &oak, &sweet,
			&profConf, &profSrc,
			&score, &status, &winStart, &winEnd,
			&resConf, &reasonsJSON, &algoVer,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bottle")
		}
		b.ID = b.Wine.ID
		if err := json.Unmarshal([]byte(grapesJSON), &b.Wine.Grapes); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal grapes for wine %d", b.Wine.ID)
		}

		if body != nil && tannin != nil && acidity != nil && oak != nil && sweet != nil {
			conf, src := model.ConfidenceMed, model.ProfileSourceAI
			if profConf != nil {
				conf = model.Confidence(*profConf)
			}
			if profSrc != nil {
				src = model.ProfileSource(*profSrc)
			}
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
			if reasonsJSON != nil && *reasonsJSON != "" {
				if err := json.Unmarshal([]byte(*reasonsJSON), &res.Reasons); err != nil {
					return nil, eris.Wrapf(err, "sqlite: unmarshal reasons for wine %d", b.Wine.ID)
				}
			}
			b.Readiness = &res
		}
		bottles = append(bottles, b)
	}
	return bottles, eris.Wrap(rows.Err(), "sqlite: iterate bottles")
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, job *model.BackfillJob) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_jobs
			(id, mode, status, algorithm_version_at_start, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM backfill_jobs WHERE status = 'running')`,
		job.ID, string(job.Mode), string(job.Status), job.AlgorithmVersionAtStart,
		job.CreatedAt.UTC().Format(time.RFC3339), job.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: claim job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: claim job rows affected")
	}
	if n == 0 {
		return backfill.ErrJobAlreadyRunning
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.BackfillJob, error) {
	var (
		j                    model.BackfillJob
		failuresJSON         string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, cursor, processed, updated, skipped, failed, failures,
		       status, algorithm_version_at_start, cancel_requested, created_at, updated_at
		FROM backfill_jobs WHERE id = ?`, id,
	).Scan(
		&j.ID, &j.Mode, &j.Cursor, &j.Processed, &j.Updated, &j.Skipped, &j.Failed,
		&failuresJSON, &j.Status, &j.AlgorithmVersionAtStart, &j.CancelRequested,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, backfill.ErrJobNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	if failuresJSON != "" {
		if err := json.Unmarshal([]byte(failuresJSON), &j.Failures); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal failures for job %s", id)
		}
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse created_at for job %s", id)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse updated_at for job %s", id)
	}
	return &j, nil
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, job *model.BackfillJob) error {
	failures, err := json.Marshal(job.Failures)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal failures for job %s", job.ID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE backfill_jobs
		SET cursor = ?, processed = ?, updated = ?, skipped = ?, failed = ?,
		    failures = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		job.Cursor, job.Processed, job.Updated, job.Skipped, job.Failed,
		string(failures), string(job.Status), job.UpdatedAt.UTC().Format(time.RFC3339), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkAffected(res, backfill.ErrJobNotFound)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, id string, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backfill_jobs SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now') WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", id)
	}
	return checkAffected(res, backfill.ErrJobNotFound)
}

func (s *SQLiteStore) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backfill_jobs SET cancel_requested = 1, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE id = ? AND status = 'running'`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: request cancel for job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: job %s is not running", id)
	}
	return nil
}

func checkAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return missing
	}
	return nil
}
