// Package version carries the collector's build identity.
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=...".
var Version = "0.1.0"

// Name is the producer name stamped on normalized events.
const Name = "hookline"

// Collector returns the sourceVersion tag for events this collector normalizes.
func Collector() string {
	return Name + "/" + Version
}
