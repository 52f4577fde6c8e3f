package envutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, Overlay(nil))
	assert.Nil(t, Overlay(map[string]string{}))
}

func TestOverlayAppendsAfterAmbient(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_AMBIENT", "ambient")

	env := Overlay(map[string]string{
		"ENVUTIL_TEST_AMBIENT": "explicit",
		"ENVUTIL_TEST_EXTRA":   "1",
	})

	require.GreaterOrEqual(t, len(env), len(os.Environ()))

	// Last occurrence wins when the environment is applied to a child, so
	// the explicit value must come after the ambient one.
	lastAmbient := -1
	lastExplicit := -1
	for i, kv := range env {
		switch kv {
		case "ENVUTIL_TEST_AMBIENT=ambient":
			lastAmbient = i
		case "ENVUTIL_TEST_AMBIENT=explicit":
			lastExplicit = i
		}
	}
	require.NotEqual(t, -1, lastAmbient)
	require.NotEqual(t, -1, lastExplicit)
	assert.Greater(t, lastExplicit, lastAmbient)
	assert.Contains(t, env, "ENVUTIL_TEST_EXTRA=1")
}
