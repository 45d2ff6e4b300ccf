package operation

import (
	"math"
	"strconv"
	"time"
)

// Well-known request option keys.
const (
	OptionCache    = "cache"
	OptionNoCache  = "noCache"
	OptionCacheTTL = "cacheTtl"
	OptionTimeout  = "timeout"

	// OptionSession names the caller's session. Transaction control and
	// the statements inside a transaction carry it.
	OptionSession = "session"
)

// Options are the flat request options passed alongside a query.
type Options map[string]any

// Bool returns the boolean value of key. String values "true" and "false"
// are accepted since some transports only carry strings.
func (o Options) Bool(key string) (bool, bool) {
	switch v := o[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// Int returns the integer value of key. JSON numbers decode as float64 and
// are accepted when they carry no fraction.
func (o Options) Int(key string) (int64, bool) {
	switch v := o[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// Millis returns key interpreted as a duration in milliseconds. Values
// beyond what a time.Duration holds are clamped to the maximum.
func (o Options) Millis(key string) (time.Duration, bool) {
	n, ok := o.Int(key)
	if !ok {
		return 0, false
	}
	switch {
	case n > maxMillis:
		return time.Duration(math.MaxInt64), true
	case n < -maxMillis:
		return time.Duration(math.MinInt64), true
	}
	return time.Duration(n) * time.Millisecond, true
}

// String returns the string value of key.
func (o Options) String(key string) (string, bool) {
	s, ok := o[key].(string)
	return s, ok
}
