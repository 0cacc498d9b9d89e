package analytics

import "encoding/json"

// Metric is a ratio or aggregate that may be undefined when its denominator
// is empty or zero. Undefined metrics serialize as JSON null, never as a
// misleading zero.
type Metric struct {
	Value float64
	Valid bool
}

// Defined wraps a computed value
func Defined(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// Undefined is the N/A sentinel
func Undefined() Metric {
	return Metric{}
}

// MarshalJSON renders undefined metrics as null
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts null as undefined
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}
	m.Valid = true
	return json.Unmarshal(data, &m.Value)
}
