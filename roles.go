package auth

import (
	"fmt"
	"strings"
)

// UserType is the closed set of account kinds on the platform.
type UserType string

const (
	UserTypePatient    UserType = "patient"
	UserTypeResearcher UserType = "researcher"
)

// UserTypes lists every valid user type.
func UserTypes() []UserType {
	return []UserType{UserTypePatient, UserTypeResearcher}
}

// IsValid checks if the user type is one of the known variants
func (t UserType) IsValid() bool {
	switch t {
	case UserTypePatient, UserTypeResearcher:
		return true
	default:
		return false
	}
}

func (t UserType) String() string {
	return string(t)
}

// ParseUserType converts raw input into a UserType. Matching ignores case and
// surrounding whitespace.
func ParseUserType(raw string) (UserType, error) {
	t := UserType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown user type %q", raw)
	}
	return t, nil
}
