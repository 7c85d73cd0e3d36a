package validation

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{
			name:    "valid email",
			email:   "test@example.com",
			wantErr: false,
		},
		{
			name:    "valid email with subdomain",
			email:   "user@mail.example.com",
			wantErr: false,
		},
		{
			name:    "valid email with plus",
			email:   "user+tag@example.com",
			wantErr: false,
		},
		{
			name:    "missing @",
			email:   "testexample.com",
			wantErr: true,
		},
		{
			name:    "missing domain",
			email:   "test@",
			wantErr: true,
		},
		{
			name:    "missing local part",
			email:   "@example.com",
			wantErr: true,
		},
		{
			name:    "empty string",
			email:   "",
			wantErr: true,
		},
		{
			name:    "spaces in email",
			email:   "test @example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid name",
			input:   "John Doe",
			wantErr: false,
		},
		{
			name:    "single name",
			input:   "John",
			wantErr: false,
		},
		{
			name:    "empty name",
			input:   "",
			wantErr: true,
		},
		{
			name:    "name too short",
			input:   "J",
			wantErr: true,
		},
		{
			name:    "name with hyphen",
			input:   "Mary-Jane",
			wantErr: false,
		},
		{
			name:    "name with apostrophe",
			input:   "O'Brien",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "valid password",
			password: "Password123",
			wantErr:  false,
		},
		{
			name:     "password exactly 8 characters",
			password: "Pass1234",
			wantErr:  false,
		},
		{
			name:     "password too short",
			password: "Pass123",
			wantErr:  true,
		},
		{
			name:     "missing uppercase",
			password: "password123",
			wantErr:  true,
		},
		{
			name:     "missing digit",
			password: "PasswordOnly",
			wantErr:  true,
		},
		{
			name:     "empty password",
			password: "",
			wantErr:  true,
		},
		{
			name:     "long password",
			password: "thisIsAVeryLongPasswordThatShouldBeValid123",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGrade(t *testing.T) {
	for _, grade := range []int{0, 5, 12} {
		if err := ValidateGrade(grade); err != nil {
			t.Errorf("ValidateGrade(%d) unexpected error: %v", grade, err)
		}
	}
	for _, grade := range []int{-1, 13} {
		err := ValidateGrade(grade)
		if err == nil {
			t.Errorf("ValidateGrade(%d) expected error", grade)
			continue
		}
		var verr ValidationError
		if !errors.As(err, &verr) || verr.Field != "grade" {
			t.Errorf("ValidateGrade(%d) error = %v, want grade ValidationError", grade, err)
		}
	}
}

func TestValidateLanguage(t *testing.T) {
	tests := []struct {
		lang    string
		wantErr bool
	}{
		{"en", false},
		{"pt-BR", false},
		{"e", true},
		{"en_US", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			err := ValidateLanguage(tt.lang)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLanguage(%q) error = %v, wantErr %v", tt.lang, err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"AB12CD", false},
		{"ZZZZZZ", false},
		{"ab12cd", true},
		{"AB12C", true},
		{"AB12CD7", true},
		{"AB-2CD", true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateJoinCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJoinCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAvatarURL(t *testing.T) {
	tests := []struct {
		name    string
		avatar  string
		wantErr bool
	}{
		{"empty", "", false},
		{"bundled name", "owl-2", false},
		{"https url", "https://cdn.example.com/a.png", false},
		{"ftp url", "ftp://example.com/a.png", true},
		{"no host", "https://", true},
		{"spaces", "my avatar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAvatarURL(tt.avatar)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAvatarURL(%q) error = %v, wantErr %v", tt.avatar, err, tt.wantErr)
			}
		})
	}
}
