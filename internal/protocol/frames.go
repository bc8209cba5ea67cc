// Package protocol implements the control-frame wire format exchanged
// over the terminal WebSocket (spec.md §4.2, FrameCodec).
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Client-to-server frame type tags.
const (
	TypeAuth   = "auth"
	TypeStdin  = "stdin"
	TypeResize = "resize"
	TypePing   = "ping"
)

// Server-to-client frame type tags.
const (
	TypeReady   = "ready"
	TypeAuthed  = "authed"
	TypeStarted = "started"
	TypePong    = "pong"
	TypeStatus  = "status"
	TypeError   = "error"
)

// ClientFrame is a parsed, validated client control frame. Exactly one of
// the typed payload fields is populated, selected by Type.
type ClientFrame struct {
	Type   string
	Ticket string // TypeAuth
	Data   string // TypeStdin
	Cols   int    // TypeResize
	Rows   int    // TypeResize
}

// allowed keys per frame type; any other key fails validation.
var allowedKeys = map[string]map[string]bool{
	TypeAuth:   {"type": true, "ticket": true},
	TypeStdin:  {"type": true, "data": true},
	TypeResize: {"type": true, "cols": true, "rows": true},
	TypePing:   {"type": true},
}

// ParseClientFrame validates and decodes a single JSON text frame.
// Malformed JSON or schema mismatches return an error; callers must reply
// with a {type:"error"} frame and must NOT advance FSM state.
func ParseClientFrame(raw []byte) (*ClientFrame, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	typeRaw, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("missing \"type\" field")
	}
	var typ string
	if err := json.Unmarshal(typeRaw, &typ); err != nil {
		return nil, fmt.Errorf("\"type\" must be a string: %w", err)
	}

	allowed, known := allowedKeys[typ]
	if !known {
		return nil, fmt.Errorf("unknown frame type %q", typ)
	}
	for k := range fields {
		if !allowed[k] {
			return nil, fmt.Errorf("unexpected field %q for frame type %q", k, typ)
		}
	}

	frame := &ClientFrame{Type: typ}

	switch typ {
	case TypeAuth:
		ticket, err := requireTrimmedString(fields, "ticket")
		if err != nil {
			return nil, err
		}
		frame.Ticket = ticket

	case TypeStdin:
		dataRaw, ok := fields["data"]
		if !ok {
			return nil, fmt.Errorf("\"stdin\" frame missing \"data\"")
		}
		var data string
		if err := json.Unmarshal(dataRaw, &data); err != nil {
			return nil, fmt.Errorf("\"data\" must be a string: %w", err)
		}
		frame.Data = data

	case TypeResize:
		cols, err := requirePositiveInt(fields, "cols")
		if err != nil {
			return nil, err
		}
		rows, err := requirePositiveInt(fields, "rows")
		if err != nil {
			return nil, err
		}
		frame.Cols = cols
		frame.Rows = rows

	case TypePing:
		// no payload

	default:
		return nil, fmt.Errorf("unknown frame type %q", typ)
	}

	return frame, nil
}

func requireTrimmedString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing %q field", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%q must be a string: %w", key, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%q must not be empty", key)
	}
	return s, nil
}

func requirePositiveInt(fields map[string]json.RawMessage, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("missing %q field", key)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%q must be an integer: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%q must be >= 1", key)
	}
	return n, nil
}

// ServerFrame is the JSON envelope for every server-to-client control frame.
type ServerFrame struct {
	Type    string `json:"type"`
	Status  any    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Encode marshals a server frame. Status payloads are decoded with
// json.Number semantics upstream (see session.onExecStatus) so large integers
// survive the round trip as their original decimal digits; Encode further
// quotes any number outside JavaScript's safe integer range so a
// browser's JSON.parse can't round it through float64 and lose digits
// (spec.md §4.2: "large integers [are replaced] by their decimal string
// form"). Numbers within the safe range are left as bare JSON numbers.
func Encode(frame ServerFrame) ([]byte, error) {
	if frame.Status != nil {
		frame.Status = quoteLargeNumbers(frame.Status)
	}
	return json.Marshal(frame)
}

// maxSafeInteger is JavaScript's Number.MAX_SAFE_INTEGER (2^53 - 1).
const maxSafeInteger = int64(1)<<53 - 1

// quoteLargeNumbers walks a decoded status payload (maps/slices/json.Number
// produced by DecodeStatusPreservingNumbers) and replaces any json.Number
// outside the safe-integer range with its decimal-string form, so encoding
// it later never falls back to encoding/json's bare-literal, float64-prone
// path for those values.
func quoteLargeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if isLargeNumber(t) {
			return t.String()
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = quoteLargeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = quoteLargeNumbers(val)
		}
		return out
	default:
		return v
	}
}

func isLargeNumber(n json.Number) bool {
	if i, err := n.Int64(); err == nil {
		return i > maxSafeInteger || i < -maxSafeInteger
	}
	// Not representable as an int64: either a float (contains '.'/'e'/'E',
	// left as-is) or an integer literal that overflowed int64, which is
	// unambiguously outside the safe range.
	s := n.String()
	return !strings.ContainsAny(s, ".eE")
}

// Ready, Authed, Started, Pong return the fixed-shape lifecycle frames.
func Ready() ServerFrame   { return ServerFrame{Type: TypeReady} }
func Authed() ServerFrame  { return ServerFrame{Type: TypeAuthed} }
func Started() ServerFrame { return ServerFrame{Type: TypeStarted} }
func Pong() ServerFrame    { return ServerFrame{Type: TypePong} }

// Error builds an {type:"error", message} frame.
func Error(message string) ServerFrame {
	return ServerFrame{Type: TypeError, Message: message}
}

// Status builds a {type:"status", status} frame, passing the upstream
// status object through verbatim.
func Status(status any) ServerFrame {
	return ServerFrame{Type: TypeStatus, Status: status}
}

// DecodeStatusPreservingNumbers decodes an upstream status payload using
// json.Number so embedded large integers keep their exact decimal digits
// instead of being rounded through float64 on re-encode.
func DecodeStatusPreservingNumbers(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
