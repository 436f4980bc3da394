// Package auth validates account credentials: password policy and hashing,
// username and email validation, verification tokens, and the breached
// password lookup.
package auth

import (
	"net/mail"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"kasupel-server/internal/kerrors"
)

const (
	bcryptCost = 12

	minPasswordLength = 10
	maxPasswordLength = 32
	minUniqueChars    = 6

	maxUsernameLength = 32
	maxEmailLength    = 255
)

// PasswordService hashes and checks passwords.
type PasswordService struct {
	cost   int
	breach BreachChecker
}

// NewPasswordService creates the service. checker may be nil to skip breach
// lookups entirely.
func NewPasswordService(checker BreachChecker) *PasswordService {
	return &PasswordService{cost: bcryptCost, breach: checker}
}

// HashPassword hashes a plain text password using bcrypt.
func (s *PasswordService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ComparePassword compares a plain text password with a stored hash.
func (s *PasswordService) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the password policy: 10-32 characters with at
// least 6 unique ones, and not known to be breached.
func (s *PasswordService) ValidatePassword(password string) error {
	runes := []rune(password)
	if len(runes) < minPasswordLength {
		return kerrors.New(kerrors.PasswordTooShort)
	}
	if len(runes) > maxPasswordLength {
		return kerrors.New(kerrors.PasswordTooLong)
	}
	unique := make(map[rune]bool, len(runes))
	for _, r := range runes {
		unique[r] = true
	}
	if len(unique) < minUniqueChars {
		return kerrors.New(kerrors.PasswordTooFewUnique)
	}
	if s.breach != nil && s.breach.IsBreached(password) {
		return kerrors.New(kerrors.PasswordBreached)
	}
	return nil
}

// ValidateUsername enforces 1-32 printable characters.
func ValidateUsername(username string) error {
	runes := []rune(username)
	if len(runes) > maxUsernameLength {
		return kerrors.New(kerrors.UsernameTooLong)
	}
	if len(runes) < 1 {
		return kerrors.New(kerrors.UsernameInvalid)
	}
	for _, r := range runes {
		if !unicode.IsPrint(r) || r == ' ' {
			return kerrors.New(kerrors.UsernameInvalid)
		}
	}
	return nil
}

// ValidateEmail checks basic address syntax.
func ValidateEmail(email string) error {
	if len(email) > maxEmailLength {
		return kerrors.New(kerrors.EmailTooLong)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return kerrors.New(kerrors.EmailInvalid)
	}
	return nil
}
