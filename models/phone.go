package models

import (
	"fmt"
	"strings"
)

// CountryPrefix is the M-Pesa country code prepended to local numbers.
const CountryPrefix = "254"

// NormalizePhone rewrites a Kenyan mobile number into the country-coded
// form the gateway expects: a leading "0" is replaced by the prefix, a bare
// local number gets the prefix prepended, and an already prefixed number
// passes through unchanged.
func NormalizePhone(raw string) (string, error) {
	phone := strings.ReplaceAll(raw, " ", "")
	phone = strings.TrimPrefix(phone, "+")

	if phone == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number %q contains non-digit characters", raw)
		}
	}

	switch {
	case strings.HasPrefix(phone, "0"):
		phone = CountryPrefix + phone[1:]
	case !strings.HasPrefix(phone, CountryPrefix):
		phone = CountryPrefix + phone
	}

	if len(phone) != 12 {
		return "", fmt.Errorf("phone number %q has invalid length after normalization", raw)
	}
	return phone, nil
}
