// internal/utils/parse.go
package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsPattern = regexp.MustCompile(`[0-9][0-9,]*`)
	floatPattern  = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

// ParsePrice reads a KRW amount such as "25,000원", "₩25,000" or "25000".
// It returns nil when the text carries no digits.
func ParsePrice(text string) *int64 {
	match := digitsPattern.FindString(text)
	if match == "" {
		return nil
	}

	value, err := strconv.ParseInt(strings.ReplaceAll(match, ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

// ParseInt reads the first integer in text, ignoring thousands separators.
func ParseInt(text string) *int {
	p := ParsePrice(text)
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}

// ParseFloat reads the first decimal number in text.
func ParseFloat(text string) *float64 {
	match := floatPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if match == "" {
		return nil
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &value
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func Int64Ptr(v int64) *int64 { return &v }

func StringPtr(v string) *string { return &v }

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
