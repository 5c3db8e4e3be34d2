package models

import "time"

// RunStats holds the per-stage counters of one pipeline run.
type RunStats struct {
	Fetched            int           `json:"fetched"`
	AfterBasicFilter   int           `json:"after_basic_filter"`
	AfterVINValidation int           `json:"after_vin_validation"`
	Stored             int           `json:"stored"`
	Duplicates         int           `json:"duplicates"`
	StoreErrors        int           `json:"store_errors"`
	APICost            float64       `json:"api_cost"`
	VINDegraded        bool          `json:"vin_degraded"`
	Duration           time.Duration `json:"duration_ns"`
}
