package model

import (
	"strings"

	"github.com/google/uuid"
)

// eventIDNamespace scopes derived ids so they never collide with ids from
// other UUIDv5 users.
var eventIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://hookline.dev/event-id"))

// DefaultEventID derives a stable id from identifying parts. Producers that
// do not send an event id get the same id on every redelivery, so dedup
// still works for them.
func DefaultEventID(parts ...string) string {
	return uuid.NewSHA1(eventIDNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
