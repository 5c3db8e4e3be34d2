package services

import (
	"math"
	"strings"

	"autocurator/filters"
	"autocurator/models"
)

// Component ceilings of the composite score. They sum to 100.
const (
	titlePoints     = 15
	mileagePoints   = 25
	pricePoints     = 20
	distancePoints  = 15
	modelPoints     = 15
	conditionPoints = 10

	rustPenalty = 5
)

// ScoreBreakdown shows how a composite score was assembled.
type ScoreBreakdown struct {
	Title     float64 `json:"title"`
	Mileage   float64 `json:"mileage"`
	Price     float64 `json:"price"`
	Distance  float64 `json:"distance"`
	Model     float64 `json:"model"`
	Condition float64 `json:"condition"`
	Penalty   float64 `json:"penalty"`
	Total     int     `json:"total"`
}

// Score computes the 0-100 composite priority score for a listing that has
// already been through the filter engine.
func Score(l *models.RawListing, res filters.Result, c filters.Criteria) ScoreBreakdown {
	var b ScoreBreakdown

	b.Title = titleScore(l.TitleStatus, c.RequiredTitle)
	b.Mileage = mileageScore(res.MileageRating)
	b.Price = priceScore(l.Price, c.MinPrice, c.MaxPrice)
	b.Distance = distanceScore(l.Distance)
	b.Model = math.Min(float64(res.ModelWeight)*1.5, modelPoints)
	b.Condition = conditionScore(l.AccidentCount, l.OwnerCount)
	if res.IsRustBeltConcern {
		b.Penalty = rustPenalty
	}

	raw := b.Title + b.Mileage + b.Price + b.Distance + b.Model + b.Condition - b.Penalty
	b.Total = int(math.Round(math.Max(0, math.Min(100, raw))))
	return b
}

func titleScore(status, required string) float64 {
	switch {
	case status == "":
		return 8
	case strings.EqualFold(status, required):
		return titlePoints
	default:
		return 0
	}
}

func mileageScore(r filters.MileageRating) float64 {
	switch r {
	case filters.MileageExcellent:
		return mileagePoints
	case filters.MileageGood:
		return 18
	case filters.MileageAcceptable:
		return 10
	default:
		return 0
	}
}

// priceScore rewards listings nearer the bottom of the allowed band.
func priceScore(price *float64, min, max float64) float64 {
	if price == nil || max <= min {
		return 10
	}
	pos := (max - *price) / (max - min)
	return pricePoints * math.Max(0, math.Min(1, pos))
}

func distanceScore(d *float64) float64 {
	if d == nil {
		return 7
	}
	switch {
	case *d <= 50:
		return distancePoints
	case *d <= 100:
		return 10
	case *d <= 200:
		return 5
	default:
		return 0
	}
}

func conditionScore(accidents, owners *int) float64 {
	var s float64
	switch {
	case accidents == nil:
		s += 3
	case *accidents == 0:
		s += 6
	}
	switch {
	case owners == nil:
		s += 2
	case *owners <= 1:
		s += 4
	case *owners == 2:
		s += 2
	}
	return s
}
