package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// LooseString decodes a JSON string or number into its textual form.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	}
	*s = LooseString(b)
	return nil
}

func (s LooseString) String() string { return string(s) }

// Int64 parses the value, 0 when it is not numeric.
func (s LooseString) Int64() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseTime parses an RFC 3339 timestamp, or a zone-less one in loc.
// Empty input yields nil.
func ParseTime(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, &time.ParseError{Layout: time.RFC3339, Value: s, Message: ": unsupported timestamp"}
}
