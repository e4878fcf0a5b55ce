package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the on-disk timestamp format. UTC is written as +00:00.
const TimeLayout = "2006-01-02T15:04:05.999999-07:00"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime accepts TimeLayout as well as RFC 3339 with a Z suffix.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Record is the untyped form of an entity as stored on disk. Numbers are
// kept as json.Number so values round-trip without float conversion.
type Record map[string]any

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return cloneValue(map[string]any(r)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Record:
		return Record(cloneValue(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// String returns the string value at key and whether it was present and a
// string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Int returns the integer value at key. Strings holding integers are
// accepted. A missing key or a null value yields ok=false.
func (r Record) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// SchemaVersion returns the record's schema_version, or 0 when absent.
func (r Record) SchemaVersion() int {
	n, _ := r.Int("schema_version")
	return int(n)
}

// Missing returns the required keys that r does not contain, sorted.
func (r Record) Missing(required []string) []string {
	var missing []string
	for _, k := range required {
		if _, ok := r[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// ParseRecord decodes a JSON object into a Record.
func ParseRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return rec, nil
}

// ToRecord converts any JSON-serialisable value into a Record.
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return ParseRecord(data)
}

// Decode fills v from r. With strict set, keys unknown to v are rejected
// with ErrIncompleteRecord.
func (r Record) Decode(v any, strict bool) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if strict && strings.HasPrefix(err.Error(), "json: unknown field") {
			return fmt.Errorf("%w: %v", ErrIncompleteRecord, err)
		}
		return fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	return nil
}

// Count is an API counter. The Data API reports counters as decimal
// strings; older files hold them as numbers. Both decode.
type Count uint64

// UnmarshalJSON accepts a JSON number or a decimal string.
func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("count %q: %w", s, err)
	}
	*c = Count(n)
	return nil
}
