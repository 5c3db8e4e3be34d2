package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocurator/models"
)

func goodListing() models.RawListing {
	return models.RawListing{
		Make:          "Toyota",
		Model:         "RAV4",
		Year:          models.IntPtr(2021),
		Price:         models.Float64Ptr(18500),
		Mileage:       models.IntPtr(28000),
		Location:      "Sacramento, CA",
		SourceURL:     "https://example.com/listing/1",
		SourceName:    "generator",
		VIN:           "2T3P1RFV8MW123456",
		TitleStatus:   "clean",
		AccidentCount: models.IntPtr(0),
		OwnerCount:    models.IntPtr(1),
		StateOfOrigin: "CA",
	}
}

func codes(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func TestValidate_CleanListing(t *testing.T) {
	l := goodListing()
	v := Validate(&l, testCriteria())

	assert.True(t, v.Valid())
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.Warnings)
}

func TestValidate_CollectsEveryFailure(t *testing.T) {
	l := goodListing()
	l.VIN = ""
	l.Make = "Ford"
	l.Price = models.Float64Ptr(42500)
	l.TitleStatus = "salvage"
	l.AccidentCount = models.IntPtr(2)
	l.OwnerCount = models.IntPtr(4)
	l.IsRental = true
	l.IsFleet = true
	l.HasLien = true
	l.FloodDamage = true

	v := Validate(&l, testCriteria())

	require.False(t, v.Valid())
	assert.Equal(t, []string{
		CodeVINMissing,
		CodeMakeNotAllowed,
		CodePriceAboveMax,
		CodeTitleStatus,
		CodeAccidents,
		CodeOwners,
		CodeRental,
		CodeFleet,
		CodeLien,
		CodeFlood,
	}, codes(v.Errors))
}

func TestValidate_PriceBothBounds(t *testing.T) {
	c := testCriteria()
	c.MinPrice, c.MaxPrice = 20000, 10000

	l := goodListing()
	l.Price = models.Float64Ptr(15000)
	v := Validate(&l, c)

	assert.Equal(t, []string{CodePriceBelowMin, CodePriceAboveMax}, codes(v.Errors))
}

func TestValidate_PriceBoundsInclusive(t *testing.T) {
	c := testCriteria()
	for _, price := range []float64{10000, 20000} {
		l := goodListing()
		l.Price = models.Float64Ptr(price)
		v := Validate(&l, c)
		assert.True(t, v.Valid(), "price %.0f", price)
	}
}

func TestValidate_YearAndAge(t *testing.T) {
	c := testCriteria()

	l := goodListing()
	l.Year = models.IntPtr(2014)
	l.Mileage = models.IntPtr(50000)
	v := Validate(&l, c)
	assert.Equal(t, []string{CodeYearBelowMin, CodeTooOld}, codes(v.Errors))
	assert.Equal(t, []string{CodeAgeOutsideIdeal}, codes(v.Warnings))

	l.Year = models.IntPtr(2024)
	l.Mileage = models.IntPtr(30000)
	v = Validate(&l, c)
	assert.True(t, v.Valid())
	assert.Equal(t, []string{CodeAgeOutsideIdeal}, codes(v.Warnings))

	c.MaxYear = 2023
	v = Validate(&l, c)
	assert.Equal(t, []string{CodeYearAboveMax}, codes(v.Errors))
}

func TestValidate_MileageChecksAreIndependent(t *testing.T) {
	c := testCriteria()

	// 10 years old: per-age ceiling is 200k, absolute ceiling 160k.
	l := goodListing()
	l.Year = models.IntPtr(2016)
	l.Mileage = models.IntPtr(165000)
	v := Validate(&l, c)
	assert.Equal(t, []string{CodeMileageAbsolute}, codes(v.Errors))

	// 2 years old: per-age ceiling is 40k.
	l.Year = models.IntPtr(2024)
	l.Mileage = models.IntPtr(45000)
	v = Validate(&l, c)
	assert.Equal(t, []string{CodeMileageForAge}, codes(v.Errors))

	l.Mileage = models.IntPtr(170000)
	v = Validate(&l, c)
	assert.Equal(t, []string{CodeMileageAbsolute, CodeMileageForAge}, codes(v.Errors))
}

func TestValidate_AbsentFieldsSkipRules(t *testing.T) {
	l := models.RawListing{
		Make: "Honda",
		VIN:  "5J6RW2H89ML012345",
	}
	v := Validate(&l, testCriteria())

	assert.True(t, v.Valid())
	assert.Empty(t, v.Warnings)
}

func TestValidate_MissingMake(t *testing.T) {
	l := goodListing()
	l.Make = "  "
	v := Validate(&l, testCriteria())
	assert.Equal(t, []string{CodeMakeMissing}, codes(v.Errors))
}

func TestValidate_MakeCaseInsensitive(t *testing.T) {
	l := goodListing()
	l.Make = "toyota"
	v := Validate(&l, testCriteria())
	assert.True(t, v.Valid())
}

func TestValidate_RentalAllowedWhenNotExcluded(t *testing.T) {
	c := testCriteria()
	c.ExcludeRental = false

	l := goodListing()
	l.IsRental = true
	v := Validate(&l, c)
	assert.True(t, v.Valid())
}

func TestValidate_RustBeltIsOnlyAWarning(t *testing.T) {
	l := goodListing()
	l.StateOfOrigin = "oh"

	v := Validate(&l, testCriteria().WithRustBeltExclusion(true))
	assert.True(t, v.Valid())
	require.Len(t, v.Warnings, 1)
	assert.Equal(t, CodeRustBelt, v.Warnings[0].Code)
	assert.Contains(t, v.Warnings[0].Message, "OH")
}
