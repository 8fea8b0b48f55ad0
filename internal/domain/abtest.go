package domain

import "time"

// A/B test metric names persisted as ABTestResult rows.
const (
	MetricOpenRate  = "open_rate"
	MetricClickRate = "click_rate"
)

// ABTestResult records one metric value for one variant of a test
// (parent) campaign. Unique on (test_id, variant_id, metric); committing
// a winner twice overwrites rather than duplicates.
type ABTestResult struct {
	TestID     string    `json:"test_id" db:"test_id"`
	VariantID  string    `json:"variant_id" db:"variant_id"`
	Metric     string    `json:"metric" db:"metric"`
	Value      float64   `json:"value" db:"value"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
