// Package models defines the span and trace records exchanged with the trace-query backend.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// StatusOK is the only status code that marks a successful span.
const StatusOK = "OK"

// Span represents one timed unit of work within a trace.
// Start and End are always expressed in microseconds, whatever the wire format was.
type Span struct {
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Name         string         `json:"name"`
	ServiceName  string         `json:"serviceName"`
	Start        int64          `json:"startTime"`
	End          int64          `json:"endTime"`
	StatusCode   string         `json:"statusCode"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// IsRoot returns true if the span has no parent reference
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// IsError returns true for any status other than "OK"
func (s *Span) IsError() bool {
	return s.StatusCode != StatusOK
}

// Duration returns End - Start in microseconds
func (s *Span) Duration() int64 {
	return s.End - s.Start
}

// spanWire is the union of both timestamp representations the backend has produced.
type spanWire struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      *string        `json:"parentSpanId"`
	Name              string         `json:"name"`
	ServiceName       string         `json:"serviceName"`
	StartTime         *Int64         `json:"startTime"`
	Duration          *Int64         `json:"duration"`
	EndTime           *Int64         `json:"endTime"`
	StartTimeUnixNano *Int64         `json:"startTimeUnixNano"`
	EndTimeUnixNano   *Int64         `json:"endTimeUnixNano"`
	StatusCode        string         `json:"statusCode"`
	Attributes        map[string]any `json:"attributes"`
}

// UnmarshalJSON decodes a span and converts its time bounds to microseconds.
//
// Accepted forms, in order of precedence:
//   - startTime + duration (microseconds)
//   - startTime + endTime (microseconds, as produced by MarshalJSON)
//   - startTimeUnixNano + endTimeUnixNano (nanoseconds)
func (s *Span) UnmarshalJSON(data []byte) error {
	var w spanWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to decode span: %w", err)
	}

	*s = Span{
		TraceID:     w.TraceID,
		SpanID:      w.SpanID,
		Name:        w.Name,
		ServiceName: w.ServiceName,
		StatusCode:  w.StatusCode,
		Attributes:  w.Attributes,
	}
	if w.ParentSpanID != nil {
		s.ParentSpanID = *w.ParentSpanID
	}

	switch {
	case w.StartTime != nil && w.Duration != nil:
		s.Start = int64(*w.StartTime)
		s.End = s.Start + int64(*w.Duration)
	case w.StartTime != nil && w.EndTime != nil:
		s.Start = int64(*w.StartTime)
		s.End = int64(*w.EndTime)
	case w.StartTimeUnixNano != nil:
		s.Start = NanosToMicros(int64(*w.StartTimeUnixNano))
		s.End = s.Start
		if w.EndTimeUnixNano != nil {
			s.End = NanosToMicros(int64(*w.EndTimeUnixNano))
		}
	case w.StartTime != nil:
		s.Start = int64(*w.StartTime)
		s.End = s.Start
	default:
		return fmt.Errorf("span %q has no start time", w.SpanID)
	}

	return nil
}

// NanosToMicros truncates a nanosecond timestamp to microseconds.
func NanosToMicros(ns int64) int64 {
	return ns / 1000
}

// Int64 decodes from a JSON number or a decimal string, the way OTLP JSON encodes 64-bit values.
type Int64 int64

// UnmarshalJSON implements json.Unmarshaler
func (i *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 1 && data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid quoted integer %s: %w", data, err)
		}
		data = []byte(unquoted)
	}

	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Some producers emit integral floats such as 1.5e+06.
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %s: %w", data, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
			return fmt.Errorf("integer %s out of range", data)
		}
		v = int64(f)
	}
	*i = Int64(v)
	return nil
}
