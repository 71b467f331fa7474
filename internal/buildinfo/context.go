// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"os"
	"runtime"
)

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Set at build time:
//
//	go build -ldflags "-X github.com/tphakala/hearken/internal/buildinfo.version=v1.2.0"
var (
	version   string
	buildDate string
)

// Context contains build metadata and the node identity. It is not part of
// the user configuration.
type Context struct {
	Version   string
	BuildDate string
	NodeID    string // identifies this listener in telemetry and MQTT client IDs
}

// NewContext returns a context with the given values.
func NewContext(version, buildDate, nodeID string) *Context {
	return &Context{Version: version, BuildDate: buildDate, NodeID: nodeID}
}

// Current returns the injected build metadata. The node ID is the given
// node name, or the host name when empty.
func Current(node string) *Context {
	if node == "" {
		node, _ = os.Hostname()
	}
	return NewContext(version, buildDate, node)
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetNodeID returns the node identity or UnknownValue.
func (c *Context) GetNodeID() string {
	if c == nil || c.NodeID == "" {
		return UnknownValue
	}
	return c.NodeID
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s, %s/%s, %s)",
		c.GetVersion(), c.GetBuildDate(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
