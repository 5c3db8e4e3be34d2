package models

import (
	"time"

	"github.com/google/uuid"
)

// QualityTier buckets the composite priority score.
type QualityTier string

const (
	TierTopPick QualityTier = "top_pick"
	TierGoodBuy QualityTier = "good_buy"
	TierCaution QualityTier = "caution"
)

// Review status
const (
	ReviewStatusPending  = "pending"
	ReviewStatusReviewed = "reviewed"
	ReviewStatusRejected = "rejected"
)

// TierForScore maps a 0-100 composite score to its tier.
func TierForScore(score int) QualityTier {
	switch {
	case score >= 80:
		return TierTopPick
	case score >= 65:
		return TierGoodBuy
	default:
		return TierCaution
	}
}

// Vehicle is a curated listing persisted once per VIN.
type Vehicle struct {
	ID         uuid.UUID `json:"id" db:"id"`
	VIN        string    `json:"vin" db:"vin"`
	Make       string    `json:"make" db:"make"`
	Model      string    `json:"model" db:"model"`
	Trim       string    `json:"trim" db:"trim"`
	Year       int       `json:"year" db:"year"`
	Price      float64   `json:"price" db:"price"`
	Mileage    int       `json:"mileage" db:"mileage"`
	Location   string    `json:"location" db:"location"`
	State      string    `json:"state" db:"state"`
	SourceURL  string    `json:"source_url" db:"source_url"`
	SourceName string    `json:"source_name" db:"source_name"`
	BodyType   string    `json:"body_type" db:"body_type"`
	DealerName string    `json:"dealer_name" db:"dealer_name"`
	Distance   *float64  `json:"distance" db:"distance"`

	TitleStatus   string `json:"title_status" db:"title_status"`
	AccidentCount *int   `json:"accident_count" db:"accident_count"`
	OwnerCount    *int   `json:"owner_count" db:"owner_count"`

	// Decoded from the VIN service
	EngineModel string `json:"engine_model" db:"engine_model"`
	FuelType    string `json:"fuel_type" db:"fuel_type"`
	DriveType   string `json:"drive_type" db:"drive_type"`

	MileageRating   string      `json:"mileage_rating" db:"mileage_rating"`
	ModelWeight     int         `json:"model_weight" db:"model_weight"` // 1-10
	PriorityScore   int         `json:"priority_score" db:"priority_score"` // 0-100
	QualityTier     QualityTier `json:"quality_tier" db:"quality_tier"`
	AISummary       string      `json:"ai_summary" db:"ai_summary"`
	FlagRustConcern bool        `json:"flag_rust_concern" db:"flag_rust_concern"`

	// User interaction
	ReviewStatus string `json:"review_status" db:"review_status"`
	IsFavorite   bool   `json:"is_favorite" db:"is_favorite"`
	UserRating   *int   `json:"user_rating" db:"user_rating"`
	UserNotes    string `json:"user_notes" db:"user_notes"`

	FirstSeen   time.Time `json:"first_seen" db:"first_seen"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
