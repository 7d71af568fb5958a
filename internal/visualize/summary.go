package visualize

import "spanscope/internal/models"

// Summary holds the aggregate facts derived from one trace's spans.
type Summary struct {
	NoData        bool           `json:"noData"`
	TraceID       string         `json:"traceId"`
	RootService   string         `json:"rootService"`
	TotalDuration int64          `json:"totalDuration"`
	HasError      bool           `json:"hasError"`
	Services      []string       `json:"services"`
	ServiceCounts map[string]int `json:"serviceCounts"`
	ErrorSpans    []models.Span  `json:"errorSpans"`
	ErrorCount    int            `json:"errorCount"`
	SpanCount     int            `json:"spanCount"`
}

// Summarize derives root service, services, per-service counts, error spans and total
// duration from a flat span list.
func Summarize(spans []models.Span) Summary {
	sum := Summary{
		Services:      []string{},
		ServiceCounts: map[string]int{},
		ErrorSpans:    []models.Span{},
	}
	if len(spans) == 0 {
		sum.NoData = true
		return sum
	}

	sum.TraceID = spans[0].TraceID
	sum.SpanCount = len(spans)
	sum.RootService = spans[0].ServiceName

	rootFound := false
	for _, s := range spans {
		if !rootFound && s.IsRoot() {
			sum.RootService = s.ServiceName
			rootFound = true
		}
		if _, seen := sum.ServiceCounts[s.ServiceName]; !seen {
			sum.Services = append(sum.Services, s.ServiceName)
		}
		sum.ServiceCounts[s.ServiceName]++
		if s.IsError() {
			sum.ErrorSpans = append(sum.ErrorSpans, s)
		}
	}

	origin, end, _ := Bounds(spans)
	sum.TotalDuration = end - origin
	sum.ErrorCount = len(sum.ErrorSpans)
	sum.HasError = sum.ErrorCount > 0

	return sum
}

// TraceSummary converts the summary into a list row.
func (s Summary) TraceSummary() models.TraceSummary {
	services := make([]string, len(s.Services))
	copy(services, s.Services)
	return models.TraceSummary{
		TraceID:       s.TraceID,
		RootService:   s.RootService,
		TotalDuration: s.TotalDuration,
		HasError:      s.HasError,
		Services:      services,
	}
}
