package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCriteria() Criteria {
	return DefaultCriteria().WithAsOfYear(2026)
}

func TestRateMileage(t *testing.T) {
	c := testCriteria()

	tests := []struct {
		name    string
		mileage int
		year    int
		want    MileageRating
	}{
		{"low mileage", 28000, 2021, MileageExcellent},
		{"one below excellent threshold", 99999, 2016, MileageExcellent},
		{"exactly excellent threshold", 100000, 2016, MileageGood},
		{"good for age", 140000, 2016, MileageGood},
		{"acceptable for age", 190000, 2016, MileageAcceptable},
		{"exceeds every threshold", 210000, 2016, MileageExceeds},
		{"old car with low miles still excellent", 50000, 2010, MileageExcellent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RateMileage(tt.mileage, tt.year, c))
		})
	}
}

func TestRateMileage_AgeNeverBelowOne(t *testing.T) {
	c := testCriteria()
	c.ExcellentMileage = 10000

	assert.Equal(t, MileageAcceptable, RateMileage(18000, 2027, c))
	assert.Equal(t, MileageGood, RateMileage(15000, 2026, c))
}

func TestRateMileage_MonotonicInMileage(t *testing.T) {
	c := testCriteria()
	for _, year := range []int{2016, 2019, 2023, 2026} {
		prev := RateMileage(0, year, c)
		for mileage := 0; mileage <= 300000; mileage += 2500 {
			got := RateMileage(mileage, year, c)
			assert.GreaterOrEqual(t, got.rank(), prev.rank(), "year %d mileage %d", year, mileage)
			prev = got
		}
	}
}

func TestCriteria_CloneDoesNotShare(t *testing.T) {
	base := DefaultCriteria()
	changed := base.WithRustBeltExclusion(true)
	changed.ModelPriority["RAV4"] = 1
	changed.AllowedMakes[0] = "Ford"

	assert.False(t, base.ExcludeRustBelt)
	assert.Equal(t, 10, base.ModelPriority["RAV4"])
	assert.Equal(t, "Toyota", base.AllowedMakes[0])
}
