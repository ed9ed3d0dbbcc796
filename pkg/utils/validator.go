package utils

import (
	"fmt"
	"regexp"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateDiscountPercent validates a discount percentage
func ValidateDiscountPercent(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("discount must be between 0 and 100: %.2f", percent)
	}
	return nil
}

// ValidateAmount validates a monetary amount
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("amount cannot be negative: %.2f", amount)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
