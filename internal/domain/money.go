package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in BRL centavos. Fixed-point keeps threshold
// comparisons exact.
type Money int64

// FromUnits converts whole currency units to Money.
func FromUnits(units int64) Money {
	return Money(units * 100)
}

// Cents returns the raw centavo count.
func (m Money) Cents() int64 {
	return int64(m)
}

// Float returns the amount in currency units. Use only for display and
// expression engines, never for comparisons inside the service.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String renders the amount as a plain decimal with two fraction digits.
func (m Money) String() string {
	sign := ""
	u := uint64(m)
	if m < 0 {
		sign = "-"
		u = -u
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/100, u%100)
}

// BRL renders the amount in pt-BR currency format, e.g. "R$ 1.250.000,00".
func (m Money) BRL() string {
	s := m.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + frac
}

// maxUnits bounds parsed amounts so that units*100 plus centavos fits in int64.
const maxUnits = math.MaxInt64/100 - 1

// ParseMoney parses a decimal amount exactly. Accepted forms are plain
// decimals ("1250000", "1250000.5") and the pt-BR form "R$ 1.250.000,50".
// At most two significant fraction digits are allowed.
func ParseMoney(s string) (Money, error) {
	raw := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, fmt.Errorf("invalid amount %q: empty", raw)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	switch {
	case strings.Contains(s, ","):
		// pt-BR: dots group thousands, comma separates centavos
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac {
		frac = strings.TrimRight(frac, "0")
		if len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q: more than two decimal places", raw)
		}
	}
	for len(frac) < 2 {
		frac += "0"
	}

	if !isDigits(intPart) || !isDigits(frac) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units > maxUnits {
		return 0, fmt.Errorf("invalid amount %q: out of range", raw)
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)

	v := units*100 + cents
	if neg {
		v = -v
	}
	return Money(v), nil
}

// MarshalJSON writes a bare JSON number with two fraction digits.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a string in any ParseMoney form.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*m = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := ParseMoney(str)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %s: %w", s, err)
		}
		cents := math.Round(f * 100)
		if math.IsNaN(cents) || math.Abs(cents) >= float64(maxUnits)*100 {
			return fmt.Errorf("invalid amount %s: out of range", s)
		}
		*m = Money(cents)
		return nil
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
