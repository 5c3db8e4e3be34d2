// Package filters decides whether a raw listing is worth curating: hard
// eligibility rules, mileage-by-age rating, per-model priority weight and
// rust-belt geography. Every function is a pure function of its inputs.
package filters

import (
	"sort"
	"time"
)

// Criteria is the filter configuration. Treat it as a value: the helpers
// below return modified copies and never mutate the receiver's slices or map.
type Criteria struct {
	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`

	MinYear     int `yaml:"min_year"`
	MaxYear     int `yaml:"max_year"` // 0 means no upper bound
	MaxAgeYears int `yaml:"max_age_years"`
	IdealAgeMin int `yaml:"ideal_age_min"`
	IdealAgeMax int `yaml:"ideal_age_max"`

	MaxMileage        int `yaml:"max_mileage"`
	IdealMilesPerYear int `yaml:"ideal_miles_per_year"`
	MaxMilesPerYear   int `yaml:"max_miles_per_year"`
	ExcellentMileage  int `yaml:"excellent_mileage"`

	RequiredTitle string `yaml:"required_title"`
	MaxAccidents  int    `yaml:"max_accidents"`
	MaxOwners     int    `yaml:"max_owners"`
	ExcludeRental bool   `yaml:"exclude_rental"`
	ExcludeFleet  bool   `yaml:"exclude_fleet"`
	ExcludeLien   bool   `yaml:"exclude_lien"`
	RequireVIN    bool   `yaml:"require_vin"`

	RustBeltStates  []string `yaml:"rust_belt_states"`
	ExcludeRustBelt bool     `yaml:"exclude_rust_belt"`

	AllowedMakes  []string       `yaml:"allowed_makes"`
	ModelPriority map[string]int `yaml:"model_priority"`

	// AsOfYear pins the calendar year used for age math; 0 uses the clock.
	AsOfYear int `yaml:"as_of_year"`
}

// DefaultModelWeight applies to models missing from the priority table.
const DefaultModelWeight = 5

// DefaultCriteria returns a fresh copy of the canonical configuration.
func DefaultCriteria() Criteria {
	return Criteria{
		MinPrice:          10000,
		MaxPrice:          20000,
		MinYear:           2015,
		MaxAgeYears:       10,
		IdealAgeMin:       4,
		IdealAgeMax:       7,
		MaxMileage:        160000,
		IdealMilesPerYear: 15000,
		MaxMilesPerYear:   20000,
		ExcellentMileage:  100000,
		RequiredTitle:     "clean",
		MaxAccidents:      0,
		MaxOwners:         2,
		ExcludeRental:     true,
		ExcludeFleet:      true,
		ExcludeLien:       true,
		RequireVIN:        true,
		RustBeltStates: []string{
			"OH", "MI", "WI", "IL", "IN", "MN", "IA",
			"PA", "NY", "MA", "CT", "VT", "NH", "ME",
		},
		ExcludeRustBelt: false,
		AllowedMakes:    []string{"Toyota", "Honda"},
		ModelPriority: map[string]int{
			"RAV4":       10,
			"C-HR":       9,
			"CR-V":       9,
			"HR-V":       8,
			"Highlander": 8,
			"4Runner":    7,
			"Venza":      7,
			"Pilot":      6,
		},
	}
}

// Clone returns a deep copy.
func (c Criteria) Clone() Criteria {
	out := c
	out.RustBeltStates = append([]string(nil), c.RustBeltStates...)
	out.AllowedMakes = append([]string(nil), c.AllowedMakes...)
	out.ModelPriority = make(map[string]int, len(c.ModelPriority))
	for k, v := range c.ModelPriority {
		out.ModelPriority[k] = v
	}
	return out
}

func (c Criteria) WithPriceRange(min, max float64) Criteria {
	out := c.Clone()
	out.MinPrice, out.MaxPrice = min, max
	return out
}

func (c Criteria) WithRustBeltExclusion(exclude bool) Criteria {
	out := c.Clone()
	out.ExcludeRustBelt = exclude
	return out
}

func (c Criteria) WithAsOfYear(year int) Criteria {
	out := c.Clone()
	out.AsOfYear = year
	return out
}

// CurrentYear is the reference year for age calculations.
func (c Criteria) CurrentYear() int {
	if c.AsOfYear > 0 {
		return c.AsOfYear
	}
	return time.Now().Year()
}

// modelNames returns the priority table keys in a stable order.
func (c Criteria) modelNames() []string {
	names := make([]string, 0, len(c.ModelPriority))
	for name := range c.ModelPriority {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
