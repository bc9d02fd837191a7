package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProviderID is a Mercado Pago payment id. The gateway emits it as a JSON
// number in some payloads and as a string in others; the canonical form is
// the decimal string without sign, padding or fractional part.
type ProviderID string

// ParseProviderID canonicalizes a raw id. Numeric inputs (including
// integral floats such as "123456.0") become plain decimal strings; other
// non-empty strings are kept trimmed.
func ParseProviderID(raw string) (ProviderID, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return "", fmt.Errorf("provider id is empty")
	}
	if n, ok := integralValue(s); ok {
		return ProviderID(strconv.FormatInt(n, 10)), nil
	}
	return ProviderID(s), nil
}

// ProviderIDFromInt builds the canonical id from a numeric value.
func ProviderIDFromInt(n int64) ProviderID {
	return ProviderID(strconv.FormatInt(n, 10))
}

// String returns the id as stored.
func (p ProviderID) String() string {
	return string(p)
}

// IsZero reports whether the id is unset.
func (p ProviderID) IsZero() bool {
	return p == ""
}

// Int64 returns the numeric value when the id is an integer.
func (p ProviderID) Int64() (int64, bool) {
	return integralValue(string(p))
}

// Canonical returns the canonical form of p.
func (p ProviderID) Canonical() ProviderID {
	c, err := ParseProviderID(string(p))
	if err != nil {
		return p
	}
	return c
}

// LookupKeys returns the forms to try when matching a stored payment: the
// canonical form first, then the raw form if it differs.
func (p ProviderID) LookupKeys() []ProviderID {
	canonical := p.Canonical()
	raw := ProviderID(strings.TrimSpace(string(p)))
	if raw == canonical || raw == "" {
		return []ProviderID{canonical}
	}
	return []ProviderID{canonical, raw}
}

// UnmarshalJSON accepts a JSON number or a JSON string.
func (p *ProviderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("provider id: %w", err)
		}
	} else {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("provider id must be a number or string: %w", err)
		}
		raw = num.String()
	}

	if strings.TrimSpace(raw) == "" {
		*p = ""
		return nil
	}
	id, err := ParseProviderID(raw)
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// MarshalJSON always emits the canonical string form.
func (p ProviderID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

func integralValue(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
