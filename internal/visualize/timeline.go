package visualize

import "spanscope/internal/models"

// MinWidthRatio is the width given to every span when the whole trace is a single instant.
const MinWidthRatio = 0.005

// SpanLayout positions one span as fractions of the trace's total width.
type SpanLayout struct {
	SpanID string  `json:"spanId"`
	Left   float64 `json:"leftRatio"`
	Width  float64 `json:"widthRatio"`
}

// Layout is the normalized timeline of a trace. Spans is aligned index-for-index with the
// input slice given to Normalize.
type Layout struct {
	NoData bool         `json:"noData"`
	Origin int64        `json:"origin"`
	Span   int64        `json:"span"`
	Spans  []SpanLayout `json:"spans"`
}

// Bounds returns the earliest start and the latest end over all spans.
// ok is false for an empty slice. An inverted span (End < Start) counts as ending at its start.
func Bounds(spans []models.Span) (origin, end int64, ok bool) {
	if len(spans) == 0 {
		return 0, 0, false
	}

	origin = spans[0].Start
	end = effectiveEnd(spans[0])
	for _, s := range spans[1:] {
		if s.Start < origin {
			origin = s.Start
		}
		if e := effectiveEnd(s); e > end {
			end = e
		}
	}
	return origin, end, true
}

func effectiveEnd(s models.Span) int64 {
	if s.End < s.Start {
		return s.Start
	}
	return s.End
}

// Normalize maps every span onto [0,1] relative to the trace's origin and total span.
func Normalize(spans []models.Span) Layout {
	origin, end, ok := Bounds(spans)
	if !ok {
		return Layout{NoData: true, Spans: []SpanLayout{}}
	}

	total := end - origin
	layout := Layout{
		Origin: origin,
		Span:   total,
		Spans:  make([]SpanLayout, len(spans)),
	}

	for i, s := range spans {
		sl := SpanLayout{SpanID: s.SpanID}
		if total == 0 {
			sl.Width = MinWidthRatio
		} else {
			sl.Left = float64(s.Start-origin) / float64(total)
			sl.Width = float64(effectiveEnd(s)-s.Start) / float64(total)
		}
		layout.Spans[i] = sl
	}

	return layout
}
