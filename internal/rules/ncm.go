package rules

import "strings"

// NCMLength is the number of digits of a full NCM code.
const NCMLength = 8

// NormalizeNCM strips every non-digit character from an NCM code.
// "8427.20.10" and "84272010" normalize to the same string.
func NormalizeNCM(ncm string) string {
	var b strings.Builder
	b.Grow(len(ncm))
	for i := 0; i < len(ncm); i++ {
		if c := ncm[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ValidNCM reports whether ncm carries exactly eight digits once normalized.
func ValidNCM(ncm string) bool {
	return len(NormalizeNCM(ncm)) == NCMLength
}

// FormatNCM renders an NCM as dddd.dd.dd. Codes that do not have
// eight digits are returned trimmed but otherwise unchanged.
func FormatNCM(ncm string) string {
	d := NormalizeNCM(ncm)
	if len(d) != NCMLength {
		return strings.TrimSpace(ncm)
	}
	return d[:4] + "." + d[4:6] + "." + d[6:]
}

func hasNCMPrefix(digits string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}
