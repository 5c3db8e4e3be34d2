package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"autocurator/models"
)

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	pool Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "storage: parse config")
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, eris.Wrap(err, "storage: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "storage: ping")
	}

	store := NewPostgresStoreWithPool(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool wraps an existing pool without migrating.
func NewPostgresStoreWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
	id UUID PRIMARY KEY,
	vin TEXT NOT NULL UNIQUE,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	trim TEXT,
	year INTEGER,
	price NUMERIC(10,2),
	mileage INTEGER,
	location TEXT,
	state TEXT,
	source_url TEXT,
	source_name TEXT,
	body_type TEXT,
	dealer_name TEXT,
	distance DOUBLE PRECISION,
	title_status TEXT,
	accident_count INTEGER,
	owner_count INTEGER,
	engine_model TEXT,
	fuel_type TEXT,
	drive_type TEXT,
	mileage_rating TEXT,
	model_weight INTEGER CHECK (model_weight BETWEEN 0 AND 10),
	priority_score INTEGER CHECK (priority_score BETWEEN 0 AND 100),
	quality_tier TEXT,
	ai_summary TEXT,
	flag_rust_concern BOOLEAN NOT NULL DEFAULT FALSE,
	review_status TEXT NOT NULL DEFAULT 'pending',
	is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
	user_rating INTEGER,
	user_notes TEXT,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS search_logs (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	source TEXT,
	success BOOLEAN NOT NULL,
	listings_fetched INTEGER NOT NULL DEFAULT 0,
	after_basic_filter INTEGER NOT NULL DEFAULT 0,
	after_vin_validation INTEGER NOT NULL DEFAULT 0,
	final_stored INTEGER NOT NULL DEFAULT 0,
	duplicates INTEGER NOT NULL DEFAULT 0,
	api_cost NUMERIC(10,4) NOT NULL DEFAULT 0,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	errors_count INTEGER NOT NULL DEFAULT 0,
	error_details JSONB NOT NULL DEFAULT '[]',
	run_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vehicles_score ON vehicles(priority_score DESC);
CREATE INDEX IF NOT EXISTS idx_search_logs_date ON search_logs(run_date DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "storage: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, vin string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM vehicles WHERE vin = $1)`, vin).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "storage: check vin")
	}
	return exists, nil
}

func (s *PostgresStore) Insert(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO vehicles (
			id, vin, make, model, trim, year, price, mileage, location, state,
			source_url, source_name, body_type, dealer_name, distance, title_status, accident_count, owner_count,
			engine_model, fuel_type, drive_type, mileage_rating, model_weight, priority_score, quality_tier,
			ai_summary, flag_rust_concern, review_status, is_favorite, user_rating, user_notes,
			first_seen, last_updated, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34
		)
		ON CONFLICT (vin) DO NOTHING`,
		v.ID, v.VIN, v.Make, v.Model, v.Trim, v.Year, v.Price, v.Mileage, v.Location, v.State,
		v.SourceURL, v.SourceName, v.BodyType, v.DealerName, v.Distance, v.TitleStatus, v.AccidentCount, v.OwnerCount,
		v.EngineModel, v.FuelType, v.DriveType, v.MileageRating, v.ModelWeight, v.PriorityScore, string(v.QualityTier),
		v.AISummary, v.FlagRustConcern, v.ReviewStatus, v.IsFavorite, v.UserRating, v.UserNotes,
		v.FirstSeen, v.LastUpdated, v.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: insert vehicle %s", v.VIN)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDuplicate
	}
	return v, nil
}

func (s *PostgresStore) CountVehicles(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "storage: count vehicles")
	}
	return n, nil
}

func (s *PostgresStore) InsertAuditLog(ctx context.Context, l *models.SearchLog) (*models.SearchLog, error) {
	if l.RunDate.IsZero() {
		l.RunDate = time.Now()
	}
	details := l.ErrorDetails
	if len(details) == 0 {
		details = json.RawMessage("[]")
	}

	out := *l
	out.ErrorDetails = details
	err := s.pool.QueryRow(ctx, `
		INSERT INTO search_logs (
			run_id, source, success, listings_fetched, after_basic_filter, after_vin_validation,
			final_stored, duplicates, api_cost, execution_time_ms, errors_count, error_details, run_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		l.RunID, l.Source, l.Success, l.ListingsFetched, l.AfterBasicFilter, l.AfterVINValidation,
		l.FinalStored, l.Duplicates, l.APICost, l.ExecutionTimeMs, l.ErrorsCount, []byte(details), l.RunDate,
	).Scan(&out.ID)
	if err != nil {
		return nil, eris.Wrap(err, "storage: insert search log")
	}
	return &out, nil
}

func (s *PostgresStore) RecentSearchLogs(ctx context.Context, limit int) ([]models.SearchLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, source, success, listings_fetched, after_basic_filter, after_vin_validation,
			final_stored, duplicates, api_cost::float8, execution_time_ms, errors_count, error_details, run_date
		FROM search_logs ORDER BY run_date DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query search logs")
	}
	defer rows.Close()

	var logs []models.SearchLog
	for rows.Next() {
		var l models.SearchLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.RunID, &l.Source, &l.Success, &l.ListingsFetched, &l.AfterBasicFilter,
			&l.AfterVINValidation, &l.FinalStored, &l.Duplicates, &l.APICost, &l.ExecutionTimeMs,
			&l.ErrorsCount, &details, &l.RunDate); err != nil {
			return nil, eris.Wrap(err, "storage: scan search log")
		}
		l.ErrorDetails = details
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "storage: iterate search logs")
}
