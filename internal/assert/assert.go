// Package assert panics on programmer errors that must never reach a caller.
package assert

import (
	"fmt"
	"strings"
)

// Length panics unless value is exactly expected bytes long
func Length(value string, expected int) {
	if len(value) != expected {
		msg := fmt.Sprintf("assert.Length expected %d actual %d", expected, len(value))
		panic(msg)
	}
}

// Prefix panics unless value starts with prefix
func Prefix(value, prefix string) {
	if !strings.HasPrefix(value, prefix) {
		panic(fmt.Sprintf("assert.Prefix expected %q", prefix))
	}
}
