package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// InviteAlphabet omits I, O, 0 and 1 so codes survive being read aloud.
	InviteAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	InviteCodeLength = 6

	MaxNameLength  = 100
	MaxPhoneLength = 32
)

var (
	// ErrInvalidInviteCode is returned when a code doesn't match the invite format
	ErrInvalidInviteCode = errors.New("invalid invite code format")

	// ErrNameRequired is returned when the submitter's name is blank
	ErrNameRequired = errors.New("please enter your name")

	// ErrNameTooLong is returned when the submitter's name exceeds MaxNameLength
	ErrNameTooLong = errors.New("name must be at most 100 characters")

	// ErrPhoneRequired is returned when the phone number is blank
	ErrPhoneRequired = errors.New("please enter your phone number")

	// ErrPhoneTooLong is returned when the phone number exceeds MaxPhoneLength
	ErrPhoneTooLong = errors.New("phone number must be at most 32 characters")

	// ErrInvalidPhone is returned when the phone number holds characters other than digits and separators
	ErrInvalidPhone = errors.New("please enter a valid phone number")

	// inviteCodeRegex: ^[A-HJ-NP-Z2-9]{6}$
	inviteCodeRegex = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)

	phoneRegex = regexp.MustCompile(`^\+?[0-9 ()./-]+$`)
)

// NormalizeInviteCode trims whitespace and upper-cases the code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateInviteCode checks an already normalised code against the invite alphabet.
func ValidateInviteCode(code string) error {
	if !inviteCodeRegex.MatchString(code) {
		return ErrInvalidInviteCode
	}
	return nil
}

// ValidateName trims and checks the submitter's display name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// ValidatePhone trims and checks a phone number. Only digits, spaces, a leading plus and common
// separators are accepted.
func ValidatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrPhoneRequired
	}
	if utf8.RuneCountInString(phone) > MaxPhoneLength {
		return "", ErrPhoneTooLong
	}
	if !phoneRegex.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// ValidateWebhookURL validates a Slack webhook URL
func ValidateWebhookURL(url string) error {
	if url == "" {
		return errors.New("webhook URL is required")
	}

	if len(url) > 500 {
		return errors.New("webhook URL must be at most 500 characters")
	}

	if !strings.HasPrefix(url, "https://hooks.slack.com/services/") {
		return errors.New("webhook URL must start with https://hooks.slack.com/services/")
	}

	return nil
}
