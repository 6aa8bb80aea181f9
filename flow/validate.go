package flow

import (
	"strings"
	"unicode"

	autherrors "github.com/masterhub/authflow/internal/errors"
	"github.com/masterhub/authflow/roles"
)

// RegistrationForm is the user input of the register screen.
type RegistrationForm struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Role            roles.Role
	SpecialtyID     int
}

// validate runs the local checks. A failing form never reaches the network.
func (f RegistrationForm) validate() error {
	var messages []string
	if err := validateEmail(f.Email); err != "" {
		messages = append(messages, err)
	}
	if err := validatePasswordStrength(f.Password); err != "" {
		messages = append(messages, err)
	}
	if f.Password != f.ConfirmPassword {
		messages = append(messages, "passwords do not match")
	}
	if f.Role == roles.Master && f.SpecialtyID <= 0 {
		messages = append(messages, "a master account requires a specialty")
	}
	if len(messages) > 0 {
		return autherrors.NewValidation(messages...)
	}
	return nil
}

func validateCredentials(email, password string) error {
	var messages []string
	if err := validateEmail(email); err != "" {
		messages = append(messages, err)
	}
	if password == "" {
		messages = append(messages, "password is required")
	}
	if len(messages) > 0 {
		return autherrors.NewValidation(messages...)
	}
	return nil
}

func validateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "email is required"
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return "invalid email format"
	}
	return ""
}

// validatePasswordStrength checks that a new password is at least 8
// characters with upper case, lower case and a digit.
func validatePasswordStrength(password string) string {
	if len(password) < 8 {
		return "password must be at least 8 characters long"
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return "password must contain at least one uppercase letter"
	}
	if !hasLower {
		return "password must contain at least one lowercase letter"
	}
	if !hasNumber {
		return "password must contain at least one number"
	}
	return ""
}
