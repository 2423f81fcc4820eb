// ABOUTME: Local validation of registration and credential forms
// ABOUTME: Failures are validation errors and never reach the network

package auth

import (
	"strings"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/identity"
)

// MinPasswordLength is the shortest password accepted for signup and reset.
const MinPasswordLength = 8

// PhoneDigits is the number of digits in a valid phone number.
const PhoneDigits = 10

// NormalizePhone returns the ten digits of phone. A leading country code 1
// on an eleven-digit number is dropped.
func NormalizePhone(phone string) (string, error) {
	digits := identity.DigitsOnly(phone)
	if len(digits) == PhoneDigits+1 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != PhoneDigits {
		return "", apperr.Validation(apperr.CodePhoneInvalid, "Enter a 10-digit phone number.")
	}
	return digits, nil
}

// ValidateCredentials checks an email/password pair before login or signup.
func ValidateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return apperr.Validation(apperr.CodeEmailRequired, "Enter your email address.")
	}
	return ValidatePassword(password)
}

// ValidatePassword enforces MinPasswordLength.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return apperr.Validation(apperr.CodePasswordTooShort, "Password must be at least 8 characters.")
	}
	return nil
}

// RegistrationForm is what the registration screen collects.
type RegistrationForm struct {
	PhoneNumber  string
	FirstName    string
	LastName     string
	BibleVersion string
	SMSConsent   bool
}

// Validate checks the phone number and consent.
func (f RegistrationForm) Validate() error {
	if _, err := NormalizePhone(f.PhoneNumber); err != nil {
		return err
	}
	if !f.SMSConsent {
		return apperr.Validation(apperr.CodeConsentRequired, "Please agree to receive text messages.")
	}
	return nil
}

// Patch converts a validated form into a profile patch. Empty optional
// fields are left out.
func (f RegistrationForm) Patch() account.ProfilePatch {
	phone, _ := NormalizePhone(f.PhoneNumber)
	consent := f.SMSConsent
	patch := account.ProfilePatch{
		PhoneNumber: &phone,
		SMSConsent:  &consent,
	}
	if v := strings.TrimSpace(f.FirstName); v != "" {
		patch.FirstName = &v
	}
	if v := strings.TrimSpace(f.LastName); v != "" {
		patch.LastName = &v
	}
	if v := strings.TrimSpace(f.BibleVersion); v != "" {
		patch.BibleVersion = &v
	}
	return patch
}
