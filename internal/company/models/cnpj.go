package models

import (
	"strings"

	dErrors "captable/pkg/domain-errors"
)

// CNPJ is a Brazilian company registration number, stored as 14 digits.
// Construct it with ParseCNPJ; direct conversion skips the checksum.
type CNPJ string

const cnpjLength = 14

var (
	firstDigitWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	secondDigitWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ParseCNPJ strips punctuation ("11.222.333/0001-81"), then checks length,
// repeated-digit patterns and both check digits.
func ParseCNPJ(raw string) (CNPJ, error) {
	if strings.ContainsFunc(raw, func(r rune) bool { return !isDigit(r) && !isSeparator(r) }) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration number contains invalid characters")
	}
	digits := NormalizeCNPJ(raw)
	if digits == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration number is required")
	}
	if len(digits) != cnpjLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration number must have 14 digits")
	}
	if strings.Count(digits, digits[:1]) == cnpjLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration number is not valid")
	}
	if checkDigit(digits[:12], firstDigitWeights) != digits[12] ||
		checkDigit(digits[:13], secondDigitWeights) != digits[13] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration number checksum mismatch")
	}
	return CNPJ(digits), nil
}

// NormalizeCNPJ keeps digits only.
func NormalizeCNPJ(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if isDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isSeparator(r rune) bool {
	return r == '.' || r == '/' || r == '-' || r == ' ' || r == '\t'
}

func checkDigit(digits string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}

func (c CNPJ) String() string {
	return string(c)
}

// Formatted renders the conventional mask, e.g. 11.222.333/0001-81.
func (c CNPJ) Formatted() string {
	s := string(c)
	if len(s) != cnpjLength {
		return s
	}
	return s[0:2] + "." + s[2:5] + "." + s[5:8] + "/" + s[8:12] + "-" + s[12:14]
}
