package vin

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"autocurator/models"
)

// Outcome is the verification of one listing in a batch.
type Outcome struct {
	Listing      *models.RawListing
	Verification Verification
}

// Valid reports whether the listing survived verification.
func (o Outcome) Valid() bool { return o.Verification.OK() }

// BatchResult holds outcomes in input order plus the kept/rejected split.
type BatchResult struct {
	Outcomes []Outcome
	Valid    []Outcome
	Rejected []Outcome
	Calls    int
}

// ValidateBatch verifies listings one after another. Each service call waits
// on the client's gate, so consecutive calls are spaced by at least the
// configured delay and nothing waits after the final call. Listings without a
// VIN or with bad syntax are rejected without a service call. A cancelled
// context or a service failure stops the batch and returns an error along
// with the outcomes judged so far.
func (c *Client) ValidateBatch(ctx context.Context, listings []*models.RawListing) (BatchResult, error) {
	var out BatchResult
	out.Outcomes = make([]Outcome, 0, len(listings))

	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "vin: batch cancelled")
		}

		o := Outcome{Listing: l}
		if l.VIN == "" {
			o.Verification.Decode.ErrorMessage = "listing has no VIN"
		} else {
			if _, syntaxErr := CheckSyntax(l.VIN); syntaxErr == nil {
				out.Calls++
			}
			year := 0
			if l.Year != nil {
				year = *l.Year
			}
			v, err := c.Verify(ctx, l.VIN, l.Make, l.Model, year)
			if err != nil {
				return out, eris.Wrapf(err, "vin: batch stopped after %d of %d listings", len(out.Outcomes), len(listings))
			}
			o.Verification = v
		}

		out.Outcomes = append(out.Outcomes, o)
		if o.Valid() {
			out.Valid = append(out.Valid, o)
		} else {
			out.Rejected = append(out.Rejected, o)
			zap.L().Debug("vin: listing rejected",
				zap.String("vin", l.VIN),
				zap.String("listing", l.Label()),
				zap.String("reason", o.Verification.Reason()),
			)
		}
	}

	return out, nil
}
