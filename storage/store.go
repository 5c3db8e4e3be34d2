// Package storage persists curated vehicles and run audit logs. Vehicles are
// write-once per VIN from the pipeline's point of view.
package storage

import (
	"context"

	"github.com/rotisserie/eris"

	"autocurator/models"
)

// ErrDuplicate is returned by Insert when a vehicle with the VIN exists.
var ErrDuplicate = eris.New("storage: vehicle with this VIN already exists")

type Store interface {
	Exists(ctx context.Context, vin string) (bool, error)
	Insert(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error)
	InsertAuditLog(ctx context.Context, l *models.SearchLog) (*models.SearchLog, error)
	RecentSearchLogs(ctx context.Context, limit int) ([]models.SearchLog, error)
	CountVehicles(ctx context.Context) (int, error)
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
