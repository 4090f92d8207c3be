// Package sources knows where the backend's resources live and how to read
// zone layouts from files.
package sources

import (
	"strings"
)

const (
	DefaultAPIBase = "http://127.0.0.1:8000"

	ZonesPath = "/zones"
	StatePath = "/state"
	GraphPath = "/planning/graph"
	LivePath  = "/ws"
)

// Endpoint joins base and path without doubling the slash.
func Endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// StreamURL derives the live channel URL from the HTTP base: the scheme
// becomes ws/wss and /ws is appended.
func StreamURL(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + LivePath
}
