package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RequiredText rejects blank values and values longer than max runes.
func RequiredText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s must not exceed %d characters", field, max)
	}
	return nil
}

// ValidateCategory checks a free-form post or album category label.
func ValidateCategory(category string) error {
	return RequiredText("category", category, 50)
}
