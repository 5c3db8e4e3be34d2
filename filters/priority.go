package filters

import "strings"

// ModelWeight returns the 1-10 priority weight of a model. Exact keys win
// over case-insensitive matches; unknown models get DefaultModelWeight.
//
// This is not the 0-100 composite priority score stored on a vehicle.
func ModelWeight(model string, table map[string]int) int {
	model = strings.TrimSpace(model)
	if w, ok := table[model]; ok {
		return clampWeight(w)
	}
	c := Criteria{ModelPriority: table}
	for _, name := range c.modelNames() {
		if strings.EqualFold(name, model) {
			return clampWeight(table[name])
		}
	}
	return DefaultModelWeight
}

func clampWeight(w int) int {
	if w < 1 {
		return 1
	}
	if w > 10 {
		return 10
	}
	return w
}
