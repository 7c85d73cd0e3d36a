package credentials

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"teachme/internal/models"
	"teachme/internal/validation"
)

// JoinCodeLength is the number of symbols in a join code
const JoinCodeLength = 6

// joinCodeAlphabet holds the 36 symbols a join code is drawn from
const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	ErrJoinCodeNotFound  = fmt.Errorf("no active child has this join code: %w", models.ErrNotFound)
	ErrAmbiguousJoinCode = fmt.Errorf("join code matches more than one child: %w", models.ErrAmbiguousMatch)
	ErrJoinCodeExhausted = errors.New("could not generate an unused join code")
)

// GenerateJoinCode returns a join code sampled uniformly, with replacement,
// from A-Z0-9. Uniqueness is not guaranteed; see GenerateUniqueJoinCode.
func GenerateJoinCode() (string, error) {
	code := make([]byte, JoinCodeLength)
	for i := range code {
		c, err := randomSymbol(joinCodeAlphabet)
		if err != nil {
			return "", err
		}
		code[i] = c
	}
	return string(code), nil
}

// GenerateUniqueJoinCode draws join codes until inUse reports one as free,
// giving up after maxAttempts draws.
func GenerateUniqueJoinCode(inUse func(code string) (bool, error), maxAttempts int) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		code, err := GenerateJoinCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate join code: %w", err)
		}
		taken, err := inUse(code)
		if err != nil {
			return "", fmt.Errorf("failed to check join code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrJoinCodeExhausted
}

// NormalizeJoinCode trims surrounding whitespace and upper-cases input
func NormalizeJoinCode(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// MatchJoinCode returns the single child whose PIN equals the normalized
// input. Zero matches is ErrJoinCodeNotFound; more than one is
// ErrAmbiguousJoinCode and no child is returned.
func MatchJoinCode(input string, activeChildren []models.Child) (*models.Child, error) {
	code := NormalizeJoinCode(input)
	if code == "" {
		return nil, validation.ValidationError{Field: "code", Message: "please enter your join code"}
	}

	var match *models.Child
	for i := range activeChildren {
		if activeChildren[i].PIN != code {
			continue
		}
		if match != nil {
			return nil, ErrAmbiguousJoinCode
		}
		match = &activeChildren[i]
	}

	if match == nil {
		return nil, ErrJoinCodeNotFound
	}
	return match, nil
}

// randomSymbol picks a random byte from alphabet
func randomSymbol(alphabet string) (byte, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[num.Int64()], nil
}
