// human readable scalar values received from the scan engine
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Scalar keeps the textual form of any JSON scalar. The engine is not
// consistent about numbers, so "12", 12 and 12.0 are all accepted and
// reported back the way they arrived.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	if s == nil {
		return errors.New("can't unmarshal to nil")
	}
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case b[0] == '{' || b[0] == '[':
		return errors.New("scalar expected, got " + string(b[:1]))
	default:
		*s = Scalar(b)
	}
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(s), 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

func (s Scalar) String() string {
	return string(s)
}

// Int returns the integer value or zero.
func (s Scalar) Int() int {
	i, err := strconv.Atoi(string(s))
	if err != nil {
		f, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return i
}
