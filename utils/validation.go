package utils

import (
	"regexp"
	"strings"
)

var (
	phonePattern   = regexp.MustCompile(`^\+?\d{10,15}$`)
	phoneStripper  = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
	dotCodePattern = regexp.MustCompile(`^DOT\s*[A-Z0-9\s]{10,13}$`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// NormalizePhone strips spaces, dashes and parentheses.
func NormalizePhone(phone string) string {
	return phoneStripper.Replace(strings.TrimSpace(phone))
}

// ValidatePhone accepts 10 to 15 digits with an optional leading "+",
// after normalization.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(NormalizePhone(phone))
}

// NormalizeDotCode upper-cases a DOT code and collapses inner whitespace.
func NormalizeDotCode(code string) string {
	return spaceRun.ReplaceAllString(strings.ToUpper(strings.TrimSpace(code)), " ")
}

// ValidateDotCode reports whether code looks like "DOT" followed by 10-13
// letters, digits or spaces.
func ValidateDotCode(code string) bool {
	return dotCodePattern.MatchString(NormalizeDotCode(code))
}

// MergeDotCodes normalizes, validates and deduplicates codes, keeping the
// first occurrence order. Invalid codes are returned separately.
func MergeDotCodes(lists ...[]string) (valid, invalid []string) {
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, raw := range list {
			code := NormalizeDotCode(raw)
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			if dotCodePattern.MatchString(code) {
				valid = append(valid, code)
			} else {
				invalid = append(invalid, code)
			}
		}
	}
	return valid, invalid
}
