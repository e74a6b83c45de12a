// Package extract implements the extraction pipeline: upload validation,
// the Gemini capability adapter with per-model retry and ordered model
// fallback, result normalization, and conditional persistence.
package extract

// NotAvailable is the placeholder for any field the model could not read.
// Every field of a normalized LineItem is non-empty; missing values carry
// this literal rather than being absent.
const NotAvailable = "N/A"

// LineItem is one extracted lab measurement. Result is free text, never
// parsed as a number; it may carry qualifiers like "<0.01" or "Positive".
type LineItem struct {
	Heading           string `json:"heading"`
	TestName          string `json:"test_name"`
	Result            string `json:"result"`
	Unit              string `json:"unit"`
	ReferenceInterval string `json:"biological_reference_interval,omitempty"`
}

// Result is the extraction envelope. Entry order is extraction order and
// is not stable across model runs. Zero entries is the sentinel for "not
// a recognizable lab report", never a valid empty result.
type Result struct {
	Results []LineItem `json:"results"`
}

// Normalize coerces every missing field of every line item to the
// NotAvailable placeholder. The reference interval stays empty when the
// requested schema version does not include it. Total; never fails.
func (r *Result) Normalize(schema *Schema) {
	for i := range r.Results {
		item := &r.Results[i]
		if item.Heading == "" {
			item.Heading = NotAvailable
		}
		if item.TestName == "" {
			item.TestName = NotAvailable
		}
		if item.Result == "" {
			item.Result = NotAvailable
		}
		if item.Unit == "" {
			item.Unit = NotAvailable
		}
		if schema.IncludesReferenceInterval() && item.ReferenceInterval == "" {
			item.ReferenceInterval = NotAvailable
		}
	}
}
