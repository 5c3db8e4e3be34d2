package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"autocurator/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, eris.Wrap(err, "storage: open sqlite")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "storage: migrate sqlite")
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		vin TEXT NOT NULL UNIQUE,
		make TEXT NOT NULL,
		model TEXT NOT NULL,
		trim TEXT,
		year INTEGER,
		price REAL,
		mileage INTEGER,
		location TEXT,
		state TEXT,
		source_url TEXT,
		source_name TEXT,
		body_type TEXT,
		dealer_name TEXT,
		distance REAL,
		title_status TEXT,
		accident_count INTEGER,
		owner_count INTEGER,
		engine_model TEXT,
		fuel_type TEXT,
		drive_type TEXT,
		mileage_rating TEXT,
		model_weight INTEGER,
		priority_score INTEGER,
		quality_tier TEXT,
		ai_summary TEXT,
		flag_rust_concern BOOLEAN DEFAULT FALSE,
		review_status TEXT DEFAULT 'pending',
		is_favorite BOOLEAN DEFAULT FALSE,
		user_rating INTEGER,
		user_notes TEXT,
		first_seen DATETIME,
		last_updated DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS search_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		source TEXT,
		success BOOLEAN,
		listings_fetched INTEGER,
		after_basic_filter INTEGER,
		after_vin_validation INTEGER,
		final_stored INTEGER,
		duplicates INTEGER,
		api_cost REAL,
		execution_time_ms INTEGER,
		errors_count INTEGER,
		error_details JSON,
		run_date DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_vehicles_score ON vehicles(priority_score DESC);
	CREATE INDEX IF NOT EXISTS idx_vehicles_tier ON vehicles(quality_tier);
	CREATE INDEX IF NOT EXISTS idx_search_logs_date ON search_logs(run_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, vin string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM vehicles WHERE vin = ?)`, vin).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "storage: check vin")
	}
	return exists, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, vin, make, model, trim, year, price, mileage, location, state,
			source_url, source_name, body_type, dealer_name, distance, title_status, accident_count, owner_count,
			engine_model, fuel_type, drive_type, mileage_rating, model_weight, priority_score, quality_tier,
			ai_summary, flag_rust_concern, review_status, is_favorite, user_rating, user_notes,
			first_seen, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vin) DO NOTHING`,
		v.ID.String(), v.VIN, v.Make, v.Model, v.Trim, v.Year, v.Price, v.Mileage, v.Location, v.State,
		v.SourceURL, v.SourceName, v.BodyType, v.DealerName, v.Distance, v.TitleStatus, v.AccidentCount, v.OwnerCount,
		v.EngineModel, v.FuelType, v.DriveType, v.MileageRating, v.ModelWeight, v.PriorityScore, string(v.QualityTier),
		v.AISummary, v.FlagRustConcern, v.ReviewStatus, v.IsFavorite, v.UserRating, v.UserNotes,
		v.FirstSeen, v.LastUpdated, v.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: insert vehicle %s", v.VIN)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrDuplicate
	}
	return v, nil
}

// GetVehicle returns the stored vehicle for vin, or nil when absent.
func (s *SQLiteStore) GetVehicle(ctx context.Context, vin string) (*models.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vin, make, model, COALESCE(trim, ''), year, price, mileage, COALESCE(state, ''),
			priority_score, quality_tier, COALESCE(ai_summary, ''), flag_rust_concern, review_status,
			accident_count, owner_count, first_seen
		FROM vehicles WHERE vin = ?`, vin)

	var v models.Vehicle
	var id, tier string
	var accidents, owners sql.NullInt64
	err := row.Scan(&id, &v.VIN, &v.Make, &v.Model, &v.Trim, &v.Year, &v.Price, &v.Mileage, &v.State,
		&v.PriorityScore, &tier, &v.AISummary, &v.FlagRustConcern, &v.ReviewStatus,
		&accidents, &owners, &v.FirstSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "storage: get vehicle")
	}

	if err := v.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, eris.Wrap(err, "storage: parse vehicle id")
	}
	v.QualityTier = models.QualityTier(tier)
	if accidents.Valid {
		n := int(accidents.Int64)
		v.AccidentCount = &n
	}
	if owners.Valid {
		n := int(owners.Int64)
		v.OwnerCount = &n
	}
	return &v, nil
}

func (s *SQLiteStore) CountVehicles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "storage: count vehicles")
	}
	return n, nil
}

func (s *SQLiteStore) InsertAuditLog(ctx context.Context, l *models.SearchLog) (*models.SearchLog, error) {
	if l.RunDate.IsZero() {
		l.RunDate = time.Now()
	}
	details := l.ErrorDetails
	if len(details) == 0 {
		details = json.RawMessage("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs (run_id, source, success, listings_fetched, after_basic_filter,
			after_vin_validation, final_stored, duplicates, api_cost, execution_time_ms, errors_count,
			error_details, run_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, l.Source, l.Success, l.ListingsFetched, l.AfterBasicFilter,
		l.AfterVINValidation, l.FinalStored, l.Duplicates, l.APICost, l.ExecutionTimeMs, l.ErrorsCount,
		string(details), l.RunDate)
	if err != nil {
		return nil, eris.Wrap(err, "storage: insert search log")
	}

	out := *l
	out.ErrorDetails = details
	out.ID, _ = res.LastInsertId()
	return &out, nil
}

func (s *SQLiteStore) RecentSearchLogs(ctx context.Context, limit int) ([]models.SearchLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, source, success, listings_fetched, after_basic_filter, after_vin_validation,
			final_stored, duplicates, api_cost, execution_time_ms, errors_count, error_details, run_date
		FROM search_logs ORDER BY run_date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query search logs")
	}
	defer rows.Close()

	var logs []models.SearchLog
	for rows.Next() {
		var l models.SearchLog
		var details string
		if err := rows.Scan(&l.ID, &l.RunID, &l.Source, &l.Success, &l.ListingsFetched, &l.AfterBasicFilter,
			&l.AfterVINValidation, &l.FinalStored, &l.Duplicates, &l.APICost, &l.ExecutionTimeMs,
			&l.ErrorsCount, &details, &l.RunDate); err != nil {
			return nil, eris.Wrap(err, "storage: scan search log")
		}
		l.ErrorDetails = json.RawMessage(details)
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "storage: iterate search logs")
}
