package validator

import (
	"errors"
	"net/mail"
	"strings"
)

func IsValidEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email format")
	}
	if !strings.Contains(strings.SplitN(email, "@", 2)[1], ".") {
		return errors.New("invalid email domain")
	}
	return nil
}
