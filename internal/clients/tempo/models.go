package tempo

import "spanscope/internal/models"

// searchResponse is the body of GET /api/search.
type searchResponse struct {
	Traces []searchTrace `json:"traces"`
}

type searchTrace struct {
	TraceID           string                  `json:"traceID"`
	RootServiceName   string                  `json:"rootServiceName"`
	StartTimeUnixNano models.Int64            `json:"startTimeUnixNano"`
	DurationMs        models.Int64            `json:"durationMs"`
	ServiceStats      map[string]serviceStats `json:"serviceStats"`
}

type serviceStats struct {
	SpanCount  int `json:"spanCount"`
	ErrorCount int `json:"errorCount"`
}

// traceResponse is the OTLP JSON body of GET /api/traces/{id}.
// Older Tempo versions use "batches", newer ones "resourceSpans".
type traceResponse struct {
	Batches       []resourceSpans `json:"batches"`
	ResourceSpans []resourceSpans `json:"resourceSpans"`
}

type resourceSpans struct {
	Resource struct {
		Attributes []keyValue `json:"attributes"`
	} `json:"resource"`
	ScopeSpans                  []scopeSpans `json:"scopeSpans"`
	InstrumentationLibrarySpans []scopeSpans `json:"instrumentationLibrarySpans"`
}

type scopeSpans struct {
	Spans []otlpSpan `json:"spans"`
}

type otlpSpan struct {
	TraceID           string       `json:"traceId"`
	SpanID            string       `json:"spanId"`
	ParentSpanID      string       `json:"parentSpanId"`
	Name              string       `json:"name"`
	StartTimeUnixNano models.Int64 `json:"startTimeUnixNano"`
	EndTimeUnixNano   models.Int64 `json:"endTimeUnixNano"`
	Attributes        []keyValue   `json:"attributes"`
	Status            struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

type keyValue struct {
	Key   string   `json:"key"`
	Value anyValue `json:"value"`
}

type anyValue struct {
	StringValue *string       `json:"stringValue"`
	IntValue    *models.Int64 `json:"intValue"`
	DoubleValue *float64      `json:"doubleValue"`
	BoolValue   *bool         `json:"boolValue"`
}

// value unwraps the OTLP AnyValue into a plain Go value.
func (v anyValue) value() any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.IntValue != nil:
		return int64(*v.IntValue)
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.BoolValue != nil:
		return *v.BoolValue
	default:
		return nil
	}
}

func attributeMap(kvs []keyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value.value()
	}
	return out
}

func stringAttribute(kvs []keyValue, key string) string {
	for _, kv := range kvs {
		if kv.Key == key && kv.Value.StringValue != nil {
			return *kv.Value.StringValue
		}
	}
	return ""
}
