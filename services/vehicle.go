// Package services turns filtered, VIN-checked listings into the Vehicle
// records the pipeline stores.
package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"autocurator/filters"
	"autocurator/identity"
	"autocurator/models"
	"autocurator/vin"
)

// BuildVehicle derives the persisted record. decoded may be nil when the VIN
// stage ran degraded; listing values always win over decoded ones.
func BuildVehicle(l *models.RawListing, res filters.Result, decoded *vin.DecodeResult, c filters.Criteria, now time.Time) *models.Vehicle {
	v := &models.Vehicle{
		ID:            uuid.New(),
		VIN:           identity.NormalizeVIN(l.VIN),
		Make:          l.Make,
		Model:         l.Model,
		Trim:          l.Trim,
		Location:      l.Location,
		State:         stateOf(l),
		SourceURL:     l.SourceURL,
		SourceName:    l.SourceName,
		BodyType:      l.BodyType,
		DealerName:    l.DealerName,
		Distance:      l.Distance,
		TitleStatus:   l.TitleStatus,
		AccidentCount: l.AccidentCount,
		OwnerCount:    l.OwnerCount,

		MileageRating:   rating(res.MileageRating),
		ModelWeight:     res.ModelWeight,
		FlagRustConcern: res.IsRustBeltConcern,

		ReviewStatus: models.ReviewStatusPending,
		FirstSeen:    now,
		LastUpdated:  now,
		CreatedAt:    now,
	}
	if l.Year != nil {
		v.Year = *l.Year
	}
	if l.Price != nil {
		v.Price = *l.Price
	}
	if l.Mileage != nil {
		v.Mileage = *l.Mileage
	}

	if decoded != nil && decoded.Valid {
		if v.Trim == "" {
			v.Trim = decoded.Trim
		}
		if v.BodyType == "" {
			v.BodyType = decoded.BodyClass
		}
		v.EngineModel = decoded.EngineModel
		v.FuelType = decoded.FuelType
		v.DriveType = decoded.DriveType
	}

	score := Score(l, res, c)
	v.PriorityScore = score.Total
	v.QualityTier = models.TierForScore(score.Total)
	v.AISummary = Summarize(v)

	return v
}

// stateOf prefers the explicit origin state, then a trailing "City, ST"
// location suffix.
func stateOf(l *models.RawListing) string {
	if s := strings.TrimSpace(l.StateOfOrigin); s != "" {
		return strings.ToUpper(s)
	}
	return filters.StateFromLocation(l.Location)
}
