package card

import (
	"strings"
	"unicode"
)

// PANLength is the only card number length accepted.
const PANLength = 16

// normalizePAN strips every whitespace rune from the input.
func normalizePAN(pan string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, pan)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// luhnValid runs the Luhn checksum over a string of ASCII digits.
func luhnValid(number string) bool {
	var sum int
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}
