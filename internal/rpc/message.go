package rpc

import (
	"encoding/json"
	"fmt"

	"sqlgate/cli/internal/gate"

	"google.golang.org/protobuf/types/known/structpb"
)

// Response is the decoded form of a Check or Run reply.
type Response struct {
	Sanitized string
	Statement string
	Allowed   bool
	Check     string
	Reason    string

	// The fields below are only set by Run.
	State     string
	Columns   []string
	Rows      [][]any
	ElapsedMS int64
	Bytes     int
	Oversized bool
	Truncated bool
	Message   string
}

func newRequest(sql string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"sql": sql})
}

// sqlField extracts the statement text. ok is false when the field is
// missing or not a string.
func sqlField(in *structpb.Struct) (string, bool) {
	if in == nil {
		return "", false
	}
	v, present := in.GetFields()["sql"]
	if !present {
		return "", false
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false
	}
	return s.StringValue, true
}

func checkFields(rep gate.Report) map[string]interface{} {
	return map[string]interface{}{
		"sanitized": rep.Sanitized,
		"statement": rep.Statement,
		"allowed":   rep.Decision.Allowed,
		"check":     string(rep.Decision.Check),
		"reason":    rep.Decision.Reason,
	}
}

func runFields(rep gate.Report) (map[string]interface{}, error) {
	m := checkFields(rep)
	m["message"] = rep.Message
	m["columns"] = []interface{}{}
	m["rows"] = []interface{}{}

	out := rep.Outcome
	if out == nil {
		m["state"] = gate.Idle.String()
		return m, nil
	}
	m["state"] = out.State.String()
	m["elapsed_ms"] = out.Elapsed.Milliseconds()
	m["bytes"] = out.ByteSize
	m["oversized"] = out.Oversized
	m["truncated"] = out.Truncated

	if out.State == gate.Completed && len(out.Payload) > 0 {
		// Round-trip through the payload so every cell is a JSON scalar that
		// structpb accepts.
		var payload struct {
			Columns []interface{} `json:"columns"`
			Rows    []interface{} `json:"rows"`
		}
		if err := json.Unmarshal(out.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if payload.Columns != nil {
			m["columns"] = payload.Columns
		}
		if payload.Rows != nil {
			m["rows"] = payload.Rows
		}
	}
	return m, nil
}

func decodeResponse(s *structpb.Struct) *Response {
	m := s.AsMap()
	r := &Response{
		Sanitized: str(m["sanitized"]),
		Statement: str(m["statement"]),
		Allowed:   boolean(m["allowed"]),
		Check:     str(m["check"]),
		Reason:    str(m["reason"]),
		State:     str(m["state"]),
		ElapsedMS: int64(number(m["elapsed_ms"])),
		Bytes:     int(number(m["bytes"])),
		Oversized: boolean(m["oversized"]),
		Truncated: boolean(m["truncated"]),
		Message:   str(m["message"]),
	}
	if cols, ok := m["columns"].([]interface{}); ok {
		for _, c := range cols {
			r.Columns = append(r.Columns, str(c))
		}
	}
	if rows, ok := m["rows"].([]interface{}); ok {
		for _, row := range rows {
			cells, _ := row.([]interface{})
			r.Rows = append(r.Rows, cells)
		}
	}
	return r
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func boolean(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func number(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
