// Package identity normalises vehicle identifiers.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"autocurator/models"
)

var (
	vinSeparators = regexp.MustCompile(`[\s-]+`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeVIN trims, removes separators and upper-cases a VIN.
func NormalizeVIN(vin string) string {
	vin = vinSeparators.ReplaceAllString(strings.TrimSpace(vin), "")
	return strings.ToUpper(vin)
}

// Fingerprint is a stable key for a listing that may not carry a VIN:
// make, model, year and source URL.
func Fingerprint(l *models.RawListing) string {
	year := 0
	if l.Year != nil {
		year = *l.Year
	}
	input := fmt.Sprintf("%s|%s|%d|%s",
		normalizeToken(l.Make),
		normalizeToken(l.Model),
		year,
		strings.ToLower(strings.TrimSpace(l.SourceURL)),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func normalizeToken(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}
