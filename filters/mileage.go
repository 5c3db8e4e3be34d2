package filters

// MileageRating classifies mileage relative to vehicle age.
type MileageRating string

const (
	MileageExcellent  MileageRating = "excellent"
	MileageGood       MileageRating = "good"
	MileageAcceptable MileageRating = "acceptable"
	// MileageExceeds means the vehicle is over every threshold and must be
	// rejected, not just scored low.
	MileageExceeds MileageRating = "none"
)

// rank orders ratings from best (0) to worst.
func (r MileageRating) rank() int {
	switch r {
	case MileageExcellent:
		return 0
	case MileageGood:
		return 1
	case MileageAcceptable:
		return 2
	default:
		return 3
	}
}

// RateMileage rates mileage for a model year. The flat excellent threshold is
// checked first so a low-mileage older car still rates excellent.
func RateMileage(mileage, modelYear int, c Criteria) MileageRating {
	age := ageYears(modelYear, c)
	if age < 1 {
		age = 1
	}

	goodMax := age * c.IdealMilesPerYear
	acceptableMax := age * c.MaxMilesPerYear

	switch {
	case mileage < c.ExcellentMileage:
		return MileageExcellent
	case mileage <= goodMax:
		return MileageGood
	case mileage <= acceptableMax:
		return MileageAcceptable
	default:
		return MileageExceeds
	}
}

func ageYears(modelYear int, c Criteria) int {
	return c.CurrentYear() - modelYear
}
