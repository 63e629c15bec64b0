package validate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reID    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reActor = regexp.MustCompile(`^[A-Za-z0-9@._ -]{1,64}$`)
)

// ID validates a resource identifier (warehouse/product/order ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Actor validates the acting identity attached to mutations.
func Actor(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reActor.MatchString(s)
}

// Qty parses a positive quantity, clamped to a sane ceiling.
func Qty(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	if n > 100000 {
		return 0, false
	}
	return n, true
}

// Seq parses a non-negative sequence cursor; empty means start.
func Seq(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
