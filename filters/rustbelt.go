package filters

import "strings"

// IsRustBelt reports whether state is one of the rust-belt state codes.
func IsRustBelt(state string, rustBelt []string) bool {
	state = strings.TrimSpace(state)
	if state == "" {
		return false
	}
	for _, s := range rustBelt {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

// StateFromLocation returns the state code of "City, ST" or "City, ST 43215".
// The token after the last comma must be exactly two letters, so spelled-out
// names like "Buffalo, New York" yield "".
func StateFromLocation(loc string) string {
	i := strings.LastIndex(loc, ",")
	if i < 0 {
		return ""
	}
	fields := strings.Fields(loc[i+1:])
	if len(fields) == 0 || len(fields[0]) != 2 {
		return ""
	}
	code := strings.ToUpper(fields[0])
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return code
}
