package models

// TraceSummary is one row of the recent-traces list.
// TotalDuration is the end-to-end wall time in microseconds.
type TraceSummary struct {
	TraceID       string   `json:"traceId"`
	RootService   string   `json:"rootService"`
	TotalDuration int64    `json:"totalDuration"`
	HasError      bool     `json:"hasError"`
	Services      []string `json:"services"`
}

// Trace is the payload returned when fetching a single trace by ID.
// Any non-null Error means the backend reported the trace as absent.
type Trace struct {
	TraceID       string `json:"traceId"`
	RootService   string `json:"rootService,omitempty"`
	TotalDuration int64  `json:"totalDuration,omitempty"`
	Spans         []Span `json:"spans"`
	TotalSpans    int    `json:"total_spans,omitempty"`
	Error         any    `json:"error,omitempty"`
}

// NotFound returns true if the backend flagged the trace as missing
func (t *Trace) NotFound() bool {
	if t.Error == nil {
		return false
	}
	if s, ok := t.Error.(string); ok {
		return s != ""
	}
	if b, ok := t.Error.(bool); ok {
		return b
	}
	return true
}
