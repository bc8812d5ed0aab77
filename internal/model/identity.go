package model

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRx     = regexp.MustCompile(`^.+@.+\..+$`)
	nameRx      = regexp.MustCompile(`^[\p{L}\p{N}\s'".,()\[\]{}!?:؛،؟…]+$`)
	injectionRx = regexp.MustCompile(`[<>'"\\/;|&!$*{}()\[\]\r\n\t]`)
)

// Identity is the requester passed to every engine run as -k name:email.
type Identity struct {
	Name  string
	Email string
}

func (i Identity) String() string {
	return i.Name + ":" + i.Email
}

// ParseIdentity parses and validates "Name:email@domain.tld".
func ParseIdentity(s string) (Identity, error) {
	name, email, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, fmt.Errorf("%w: name and email must be separated by \":\"", ErrInvalidIdentity)
	}
	if name == "" {
		return Identity{}, fmt.Errorf("%w: please provide your name", ErrInvalidIdentity)
	}
	if !ValidName(name) {
		return Identity{}, fmt.Errorf("%w: please provide a valid name", ErrInvalidIdentity)
	}
	if !ValidEmail(email) {
		return Identity{}, fmt.Errorf("%w: please provide a valid email address", ErrInvalidIdentity)
	}
	return Identity{Name: name, Email: email}, nil
}

func ValidEmail(email string) bool {
	return emailRx.MatchString(email)
}

// ValidName accepts printable names in any script and rejects characters
// which could be used for an injection into the engine command line.
func ValidName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 32000 {
		return false
	}
	if !nameRx.MatchString(name) {
		return false
	}
	return !injectionRx.MatchString(name)
}
