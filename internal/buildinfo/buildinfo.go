// Package buildinfo contains build-time metadata separate from user configuration.
package buildinfo

import "runtime/debug"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Set at link time:
//
//	go build -ldflags "-X github.com/mriscan/braintumor-go/internal/buildinfo.version=v1.0.0 -X github.com/mriscan/braintumor-go/internal/buildinfo.buildDate=2026-10-17"
var (
	version   string
	buildDate string
)

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// NewContext creates a Context from explicit values.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata of the running binary. Without link-time
// values the main module version recorded by the Go toolchain is used.
func Current() *Context {
	v := version
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return NewContext(v, buildDate)
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return c.GetVersion() + " (built " + c.GetBuildDate() + ")"
}
