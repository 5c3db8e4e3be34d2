package filters

import (
	"fmt"

	"autocurator/models"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Reason explains one part of a filter decision.
type Reason struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

func (r Reason) String() string {
	return string(r.Severity) + ": " + r.Message
}

// Result is the outcome of ApplyFilters. Pass is false exactly when Reasons
// holds at least one error.
type Result struct {
	Pass              bool          `json:"pass"`
	Reasons           []Reason      `json:"reasons"`
	MileageRating     MileageRating `json:"mileage_rating,omitempty"`
	ModelWeight       int           `json:"model_weight,omitempty"`
	IsRustBeltConcern bool          `json:"is_rust_belt_concern"`
}

// Errors returns only the error-class reasons.
func (r *Result) Errors() []Reason {
	var out []Reason
	for _, reason := range r.Reasons {
		if reason.Severity == SeverityError {
			out = append(out, reason)
		}
	}
	return out
}

func (r *Result) add(sev Severity, code, format string, args ...any) {
	r.Reasons = append(r.Reasons, Reason{Severity: sev, Code: code, Message: fmt.Sprintf(format, args...)})
	if sev == SeverityError {
		r.Pass = false
	}
}

// ApplyFilters runs eligibility, mileage rating, model weight and rust-belt
// checks against one listing.
func ApplyFilters(l *models.RawListing, c Criteria) Result {
	res := Result{Pass: true}

	v := Validate(l, c)
	for _, is := range v.Errors {
		res.add(SeverityError, is.Code, "%s", is.Message)
	}
	rustWarned := false
	for _, is := range v.Warnings {
		res.add(SeverityWarning, is.Code, "%s", is.Message)
		if is.Code == CodeRustBelt {
			rustWarned = true
		}
	}

	if l.Mileage != nil && l.Year != nil {
		res.MileageRating = RateMileage(*l.Mileage, *l.Year, c)
		if res.MileageRating == MileageExceeds {
			res.add(SeverityError, CodeMileageExceeds, "mileage %d exceeds acceptable limit for a %d model year", *l.Mileage, *l.Year)
		}
	}

	if l.Model != "" {
		res.ModelWeight = ModelWeight(l.Model, c.ModelPriority)
		res.add(SeverityInfo, CodeModelWeight, "model priority %d/10 (%s)", res.ModelWeight, l.Model)
	}

	switch {
	case l.StateOfOrigin != "":
		res.IsRustBeltConcern = IsRustBelt(l.StateOfOrigin, c.RustBeltStates)
	case l.IsRustBelt != nil:
		res.IsRustBeltConcern = *l.IsRustBelt
	}
	if res.IsRustBeltConcern {
		if !rustWarned {
			res.add(SeverityWarning, CodeRustBelt, "listing is flagged as rust belt origin")
		}
		if c.ExcludeRustBelt {
			res.add(SeverityError, CodeRustBeltExcluded, "rust belt origin is excluded")
		}
	}

	if res.Pass && len(res.Reasons) == 0 {
		res.add(SeverityInfo, CodeMeetsCriteria, "meets all criteria")
	}

	return res
}

// Filtered pairs a passing listing with its filter result.
type Filtered struct {
	Listing models.RawListing
	Result  Result
}

// FilterListings returns the listings that pass, in input order.
func FilterListings(listings []models.RawListing, c Criteria) []Filtered {
	var out []Filtered
	for i := range listings {
		res := ApplyFilters(&listings[i], c)
		if res.Pass {
			out = append(out, Filtered{Listing: listings[i], Result: res})
		}
	}
	return out
}

// Stats summarises filter outcomes over a batch.
type Stats struct {
	Total            int                   `json:"total"`
	Passed           int                   `json:"passed"`
	Failed           int                   `json:"failed"`
	RejectionReasons map[string]int        `json:"rejection_reasons"` // error codes only
	MileageRatings   map[MileageRating]int `json:"mileage_ratings"`
	ModelWeights     map[int]int           `json:"model_weights"`
}

// GetFilterStats re-runs ApplyFilters over listings and aggregates the
// outcomes. Warnings are not counted as rejection reasons.
func GetFilterStats(listings []models.RawListing, c Criteria) Stats {
	stats := Stats{
		Total:            len(listings),
		RejectionReasons: make(map[string]int),
		MileageRatings:   make(map[MileageRating]int),
		ModelWeights:     make(map[int]int),
	}

	for i := range listings {
		res := ApplyFilters(&listings[i], c)
		if res.Pass {
			stats.Passed++
		} else {
			stats.Failed++
		}
		for _, r := range res.Errors() {
			stats.RejectionReasons[r.Code]++
		}
		if res.MileageRating != "" {
			stats.MileageRatings[res.MileageRating]++
		}
		if res.ModelWeight > 0 {
			stats.ModelWeights[res.ModelWeight]++
		}
	}

	return stats
}
