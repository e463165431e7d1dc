package id

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		msgID, err := NewMessageID()
		require.NoError(t, err)

		prefix, short, err := ParsePrefixedID(msgID)
		require.NoError(t, err)
		assert.Equal(t, PrefixMessage, prefix)
		assert.Len(t, short, DefaultLength)
		assert.False(t, seen[msgID], "duplicate id %s", msgID)
		seen[msgID] = true
	}
}

func FuzzParsePrefixedID(f *testing.F) {
	for _, seed := range []string{"sm_xK9mP2vL3nQ", "", "nounderscore", "_lead", "trail_", "a_b_c"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		if !utf8.ValidString(input) {
			return
		}

		prefix, shortID, err := ParsePrefixedID(input)
		if !strings.Contains(input, "_") {
			if err == nil {
				t.Errorf("ParsePrefixedID(%q) should fail without underscore", input)
			}
			return
		}
		if err != nil {
			t.Errorf("ParsePrefixedID(%q) unexpected error: %v", input, err)
			return
		}
		if prefix+"_"+shortID != input {
			t.Errorf("ParsePrefixedID(%q) = (%q, %q) does not reassemble", input, prefix, shortID)
		}
	})
}
