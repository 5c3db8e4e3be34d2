package models

import (
	"encoding/json"
	"time"
)

// SearchLog is the audit record written once per pipeline run.
type SearchLog struct {
	ID                 int64           `json:"id" db:"id"`
	RunID              string          `json:"run_id" db:"run_id"`
	Source             string          `json:"source" db:"source"`
	Success            bool            `json:"success" db:"success"`
	ListingsFetched    int             `json:"listings_fetched" db:"listings_fetched"`
	AfterBasicFilter   int             `json:"after_basic_filter" db:"after_basic_filter"`
	AfterVINValidation int             `json:"after_vin_validation" db:"after_vin_validation"`
	FinalStored        int             `json:"final_stored" db:"final_stored"`
	Duplicates         int             `json:"duplicates" db:"duplicates"`
	APICost            float64         `json:"api_cost" db:"api_cost"`
	ExecutionTimeMs    int64           `json:"execution_time_ms" db:"execution_time_ms"`
	ErrorsCount        int             `json:"errors_count" db:"errors_count"`
	ErrorDetails       json.RawMessage `json:"error_details" db:"error_details"`
	RunDate            time.Time       `json:"run_date" db:"run_date"`
}
