package models

// RawListing is a candidate vehicle as produced by a data source. Pointer and
// empty fields mean the source did not supply the value; eligibility rules
// skip absent fields instead of treating them as failures.
type RawListing struct {
	Make       string   `json:"make"`
	Model      string   `json:"model"`
	Year       *int     `json:"year,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Mileage    *int     `json:"mileage,omitempty"`
	Location   string   `json:"location"`
	SourceURL  string   `json:"source_url"`
	SourceName string   `json:"source_name"`

	VIN        string   `json:"vin,omitempty"`
	Trim       string   `json:"trim,omitempty"`
	BodyType   string   `json:"body_type,omitempty"`
	DealerName string   `json:"dealer_name,omitempty"`
	Distance   *float64 `json:"distance,omitempty"` // miles from the buyer

	// Vehicle history
	TitleStatus   string `json:"title_status,omitempty"`
	AccidentCount *int   `json:"accident_count,omitempty"`
	OwnerCount    *int   `json:"owner_count,omitempty"`
	IsRental      bool   `json:"is_rental,omitempty"`
	IsFleet       bool   `json:"is_fleet,omitempty"`
	HasLien       bool   `json:"has_lien,omitempty"`
	FloodDamage   bool   `json:"flood_damage,omitempty"`

	StateOfOrigin string `json:"state_of_origin,omitempty"`
	IsRustBelt    *bool  `json:"is_rust_belt,omitempty"`
}

// Label is a short human identifier used in logs.
func (l *RawListing) Label() string {
	label := l.Make + " " + l.Model
	if l.VIN != "" {
		label += " (" + l.VIN + ")"
	}
	return label
}

func IntPtr(v int) *int {
	return &v
}

func Float64Ptr(v float64) *float64 {
	return &v
}

func BoolPtr(v bool) *bool {
	return &v
}
