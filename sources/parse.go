package sources

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsRe = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	yearRe   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// parseMoney reads "$18,995" or "18995.00". Zero means unknown.
func parseMoney(s string) float64 {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseMileage reads "28,000 mi", "28k miles" or "28000".
func parseMileage(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	rest := strings.TrimSpace(s[strings.Index(s, m)+len(m):])
	if strings.HasPrefix(rest, "k") && !strings.HasPrefix(rest, "km") {
		f *= 1000
	}
	return int(f)
}

var makeAliases = map[string]string{
	"toyota": "Toyota",
	"honda":  "Honda",
}

// parseTitle splits "Used 2021 Toyota RAV4 XLE AWD" into year, make, model
// and trim. Unknown makes are returned as written.
func parseTitle(title string) (year int, mk, model, trim string) {
	fields := strings.Fields(title)
	start := -1
	for i, f := range fields {
		if yearRe.MatchString(f) && len(f) == 4 {
			year, _ = strconv.Atoi(f)
			start = i + 1
			break
		}
	}
	if start < 0 {
		start = 0
	}
	rest := fields[start:]
	if len(rest) > 0 {
		mk = rest[0]
		if canon, ok := makeAliases[strings.ToLower(mk)]; ok {
			mk = canon
		}
	}
	if len(rest) > 1 {
		model = rest[1]
	}
	if len(rest) > 2 {
		trim = strings.Join(rest[2:], " ")
	}
	return year, mk, model, trim
}
