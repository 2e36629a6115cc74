package api

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	minNameLen     = 2
	minPasswordLen = 6
	maxAge         = 150
)

func validateName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, len(name) >= minNameLen
}

func validateEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	return email, emailPattern.MatchString(email)
}

func validatePassword(password string) bool {
	return len(password) >= minPasswordLen
}

func validateAge(age int) bool {
	return age >= 0 && age <= maxAge
}
