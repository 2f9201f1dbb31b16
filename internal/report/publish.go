package report

import "encoding/json"

// PublishedResult is the payload a publish task uploads to the results
// server: which run and variant it came from, the run title and the summary.
type PublishedResult struct {
	RunID     string  `json:"runId"`
	Variant   string  `json:"variant"`
	Title     string  `json:"title"`
	Summary   Summary `json:"summary"`
	Timestamp string  `json:"timestamp"`
}

// Upload is the signed envelope sent over the wire. The signature covers the
// raw Result bytes, so the server verifies exactly what it stores.
type Upload struct {
	Result    json.RawMessage `json:"result"`
	Signature string          `json:"signature,omitempty"`
	PubKey    string          `json:"pubKey,omitempty"`
}
