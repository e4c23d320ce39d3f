package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("v1.0.0", "2026-01-01"), want: "v1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContextBuildDate(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.GetBuildDate())
	assert.Equal(t, UnknownValue, NewContext("v1.0.0", "").GetBuildDate())
	assert.Equal(t, "2026-01-01", NewContext("v1.0.0", "2026-01-01").GetBuildDate())
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v1.2.3 (built 2026-10-17)", NewContext("v1.2.3", "2026-10-17").String())
	assert.Equal(t, "unknown (built unknown)", NewContext("", "").String())
}

func TestCurrentNeverEmpty(t *testing.T) {
	t.Parallel()

	c := Current()
	assert.NotEmpty(t, c.GetVersion())
	assert.NotEmpty(t, c.GetBuildDate())
}
