package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// MaxGrade is the highest grade a child profile can hold (0 is kindergarten)
const MaxGrade = 12

// ValidationError represents malformed user input for a single field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks the signup password policy: at least eight
// characters with an upper-case letter, a lower-case letter and a digit.
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < 8 {
		return ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ValidationError{Field: "password", Message: "password must contain an uppercase letter, a lowercase letter and a number"}
	}
	return nil
}

// ValidateName checks if a name is valid
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if len(name) < 2 {
		return ValidationError{Field: "name", Message: "name must be at least 2 characters"}
	}
	return nil
}

// ValidateChildName checks a child's display name. Single-letter names are
// allowed for children.
func ValidateChildName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "name", Message: "child's name is required"}
	}
	if len(name) > 50 {
		return ValidationError{Field: "name", Message: "name must be at most 50 characters"}
	}
	return nil
}

// ValidateGrade checks that grade is between kindergarten and 12th grade
func ValidateGrade(grade int) error {
	if grade < 0 || grade > MaxGrade {
		return ValidationError{Field: "grade", Message: fmt.Sprintf("grade must be between 0 and %d", MaxGrade)}
	}
	return nil
}

// ValidateLanguage checks a settings language tag such as "en" or "pt-BR"
func ValidateLanguage(lang string) error {
	if len(lang) < 2 || len(lang) > 10 {
		return ValidationError{Field: "language", Message: "invalid language code"}
	}
	for _, r := range lang {
		if !unicode.IsLetter(r) && r != '-' {
			return ValidationError{Field: "language", Message: "invalid language code"}
		}
	}
	return nil
}

// ValidateProgressPercent checks a lesson progress percentage
func ValidateProgressPercent(percent int) error {
	if percent < 0 || percent > 100 {
		return ValidationError{Field: "progress", Message: "progress must be between 0 and 100"}
	}
	return nil
}

// ValidateJoinCode checks a stored join code: six symbols from A-Z0-9
func ValidateJoinCode(code string) error {
	if len(code) != 6 {
		return ValidationError{Field: "pin", Message: "join code must be 6 characters"}
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ValidationError{Field: "pin", Message: "join code may only contain A-Z and 0-9"}
		}
	}
	return nil
}

// ValidateAvatarURL accepts an empty value, a bundled avatar name such as
// "owl-2", or an absolute http(s) URL
func ValidateAvatarURL(avatar string) error {
	if avatar == "" {
		return nil
	}
	if len(avatar) > 500 {
		return ValidationError{Field: "avatarUrl", Message: "avatar must be at most 500 characters"}
	}
	if !strings.Contains(avatar, "://") {
		for _, r := range avatar {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.' {
				return ValidationError{Field: "avatarUrl", Message: "invalid avatar name"}
			}
		}
		return nil
	}
	u, err := url.Parse(avatar)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ValidationError{Field: "avatarUrl", Message: "avatar must be an http or https URL"}
	}
	return nil
}
