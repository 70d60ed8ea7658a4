// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// FormInts parses a list of form values. Blank values yield def. The second
// result lists the positions that held something other than an integer.
func FormInts(vals []string, def int) (out []int, bad []int) {
	out = make([]int, len(vals))
	for i, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			out[i] = def
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			bad = append(bad, i)
			continue
		}
		out[i] = n
	}
	return out, bad
}
