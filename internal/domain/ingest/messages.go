package ingest

// Messages returned in ErrorPayload.Message.
const (
	MsgNotFound         = "not found"
	MsgMethodNotAllowed = "method not allowed"
	MsgInvalidJSON      = "invalid JSON body"
	MsgStoreFailed      = "failed to store event"
)
