package sink

import (
	"fmt"
	"time"
)

// Options wraps a raw options map with typed accessors. Each accessor
// returns the zero value and ok=false when the key is absent, and an error
// when the key is present with the wrong type.
type Options map[string]any

// String returns the string option key.
func (o Options) String(key string) (string, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("'%s' must be a string, got %T", key, raw)
	}
	return s, true, nil
}

// Int returns the integer option key. Whole floats are accepted, since
// JSON decoders produce float64 for every number.
func (o Options) Int(key string) (int, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, false, fmt.Errorf("'%s' must be a whole number, got %v", key, v)
		}
		return int(v), true, nil
	default:
		return 0, false, fmt.Errorf("'%s' must be a number, got %T", key, raw)
	}
}

// Float returns the numeric option key as a float.
func (o Options) Float(key string) (float64, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("'%s' must be a number, got %T", key, raw)
	}
}

// Bool returns the boolean option key.
func (o Options) Bool(key string) (bool, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return false, false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, false, fmt.Errorf("'%s' must be a boolean, got %T", key, raw)
	}
	return b, true, nil
}

// Duration returns the option key parsed as a duration string (e.g. "5s").
func (o Options) Duration(key string) (time.Duration, bool, error) {
	s, ok, err := o.String(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, true, nil
}
