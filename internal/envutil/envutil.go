// Package envutil builds child-process environments.
package envutil

import (
	"fmt"
	"os"
	"sort"
)

// Overlay returns the ambient process environment with the given entries
// appended in sorted key order. Appending last means the explicit entries win
// on key collision, which is the contract everywhere a configured environment
// meets the ambient one.
func Overlay(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return nil
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overlay[k]))
	}
	return env
}
