package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_CutsOnRuneBoundary(t *testing.T) {
	short := "федеральный налог"
	assert.Equal(t, short, Truncate(short, 50))

	long := strings.Repeat("налог", 30)
	got := Truncate(long, 12)
	assert.Equal(t, "налогналогна", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 12, utf8.RuneCountInString(got))
}

func TestTruncateError_Bounds(t *testing.T) {
	msg := strings.Repeat("预扣税额无法解析。", 100)
	got := TruncateError(msg)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, MaxErrorMessageLen, utf8.RuneCountInString(got))
	assert.Equal(t, "boom", TruncateError("boom"))
}

func TestNewSessionTitle_Bounds(t *testing.T) {
	question := strings.Repeat("¿dónde va el salario? ", 10)
	title := NewSessionTitle(question)

	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, MaxSessionTitleLen, utf8.RuneCountInString(title))
	assert.Equal(t, "short", NewSessionTitle("short"))
}
