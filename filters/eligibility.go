package filters

import (
	"fmt"
	"strings"

	"autocurator/models"
)

// Rule codes identify which rule produced a reason, independent of the
// formatted message.
const (
	CodeVINMissing       = "vin_missing"
	CodeMakeMissing      = "make_missing"
	CodeMakeNotAllowed   = "make_not_allowed"
	CodePriceBelowMin    = "price_below_min"
	CodePriceAboveMax    = "price_above_max"
	CodeYearBelowMin     = "year_below_min"
	CodeYearAboveMax     = "year_above_max"
	CodeTooOld           = "age_exceeds_max"
	CodeAgeOutsideIdeal  = "age_outside_ideal"
	CodeMileageAbsolute  = "mileage_above_max"
	CodeMileageForAge    = "mileage_above_age_limit"
	CodeMileageExceeds   = "mileage_rating_exceeds"
	CodeTitleStatus      = "title_not_clean"
	CodeAccidents        = "accidents_exceed_max"
	CodeOwners           = "owners_exceed_max"
	CodeRental           = "rental"
	CodeFleet            = "fleet"
	CodeLien             = "lien"
	CodeFlood            = "flood_damage"
	CodeRustBelt         = "rust_belt"
	CodeRustBeltExcluded = "rust_belt_excluded"
	CodeModelWeight      = "model_weight"
	CodeMeetsCriteria    = "meets_criteria"
)

// Issue is a single validator finding.
type Issue struct {
	Code    string
	Message string
}

// Validation accumulates every finding for one listing; rules never stop
// at the first failure.
type Validation struct {
	Errors   []Issue
	Warnings []Issue
}

func (v *Validation) Valid() bool {
	return len(v.Errors) == 0
}

func (v *Validation) fail(code, format string, args ...any) {
	v.Errors = append(v.Errors, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *Validation) warn(code, format string, args ...any) {
	v.Warnings = append(v.Warnings, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// ErrorMessages returns the error messages in rule order.
func (v *Validation) ErrorMessages() []string {
	return messages(v.Errors)
}

// WarningMessages returns the warning messages in rule order.
func (v *Validation) WarningMessages() []string {
	return messages(v.Warnings)
}

func messages(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Message
	}
	return out
}

// Validate applies every hard eligibility rule to l. Absent fields skip
// their rule. Geography only ever produces a warning here.
func Validate(l *models.RawListing, c Criteria) Validation {
	var v Validation

	if c.RequireVIN && strings.TrimSpace(l.VIN) == "" {
		v.fail(CodeVINMissing, "VIN is required")
	}

	checkMake(&v, l, c)
	checkPrice(&v, l, c)
	checkYear(&v, l, c)
	checkMileage(&v, l, c)
	checkHistory(&v, l, c)

	if IsRustBelt(l.StateOfOrigin, c.RustBeltStates) {
		v.warn(CodeRustBelt, "state of origin %s is in the rust belt", strings.ToUpper(strings.TrimSpace(l.StateOfOrigin)))
	}

	return v
}

func checkMake(v *Validation, l *models.RawListing, c Criteria) {
	mk := strings.TrimSpace(l.Make)
	if mk == "" {
		v.fail(CodeMakeMissing, "make is required")
		return
	}
	for _, allowed := range c.AllowedMakes {
		if strings.EqualFold(allowed, mk) {
			return
		}
	}
	v.fail(CodeMakeNotAllowed, "make %s is not one of %s", mk, strings.Join(c.AllowedMakes, ", "))
}

func checkPrice(v *Validation, l *models.RawListing, c Criteria) {
	if l.Price == nil {
		return
	}
	price := *l.Price
	if price < c.MinPrice {
		v.fail(CodePriceBelowMin, "price $%.0f is below minimum $%.0f", price, c.MinPrice)
	}
	if price > c.MaxPrice {
		v.fail(CodePriceAboveMax, "price $%.0f is above maximum $%.0f", price, c.MaxPrice)
	}
}

func checkYear(v *Validation, l *models.RawListing, c Criteria) {
	if l.Year == nil {
		return
	}
	year := *l.Year
	if year < c.MinYear {
		v.fail(CodeYearBelowMin, "year %d is before minimum %d", year, c.MinYear)
	}
	if c.MaxYear > 0 && year > c.MaxYear {
		v.fail(CodeYearAboveMax, "year %d is after maximum %d", year, c.MaxYear)
	}

	age := ageYears(year, c)
	if age > c.MaxAgeYears {
		v.fail(CodeTooOld, "vehicle age %d years exceeds maximum %d", age, c.MaxAgeYears)
	}
	if age < c.IdealAgeMin || age > c.IdealAgeMax {
		v.warn(CodeAgeOutsideIdeal, "vehicle age %d years is outside ideal range %d-%d", age, c.IdealAgeMin, c.IdealAgeMax)
	}
}

func checkMileage(v *Validation, l *models.RawListing, c Criteria) {
	if l.Mileage == nil {
		return
	}
	mileage := *l.Mileage
	if mileage > c.MaxMileage {
		v.fail(CodeMileageAbsolute, "mileage %d exceeds absolute maximum %d", mileage, c.MaxMileage)
	}
	if l.Year == nil {
		return
	}
	age := ageYears(*l.Year, c)
	if age < 1 {
		age = 1
	}
	if limit := age * c.MaxMilesPerYear; mileage > limit {
		v.fail(CodeMileageForAge, "mileage %d exceeds %d allowed at %d years (%d/yr)", mileage, limit, age, c.MaxMilesPerYear)
	}
}

func checkHistory(v *Validation, l *models.RawListing, c Criteria) {
	if title := strings.TrimSpace(l.TitleStatus); title != "" && c.RequiredTitle != "" &&
		!strings.EqualFold(title, c.RequiredTitle) {
		v.fail(CodeTitleStatus, "title status %s is not %s", title, c.RequiredTitle)
	}
	if l.AccidentCount != nil && *l.AccidentCount > c.MaxAccidents {
		v.fail(CodeAccidents, "accident count %d exceeds maximum %d", *l.AccidentCount, c.MaxAccidents)
	}
	if l.OwnerCount != nil && *l.OwnerCount > c.MaxOwners {
		v.fail(CodeOwners, "owner count %d exceeds maximum %d", *l.OwnerCount, c.MaxOwners)
	}
	if l.IsRental && c.ExcludeRental {
		v.fail(CodeRental, "former rental vehicle")
	}
	if l.IsFleet && c.ExcludeFleet {
		v.fail(CodeFleet, "former fleet vehicle")
	}
	if l.HasLien && c.ExcludeLien {
		v.fail(CodeLien, "active lien on title")
	}
	if l.FloodDamage {
		v.fail(CodeFlood, "flood damage reported")
	}
}
