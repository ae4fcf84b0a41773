package thread

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromMessage(t *testing.T) {
	assert.Equal(t, "is this link safe?", titleFromMessage("is this link safe?"))

	long := strings.Repeat("x", 45)
	got := titleFromMessage(long)
	assert.Equal(t, strings.Repeat("x", 30)+"...", got)

	// Multibyte input must not be split mid-rune.
	assert.Equal(t, "नमस्ते", titleFromMessage("नमस्ते"))
}
