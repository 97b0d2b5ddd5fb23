// Package mailbox defines the boundary to the monitored notification inbox.
// The transport (IMAP, proxy, gateway) lives behind the Client interface;
// this package only models what a fetched message looks like.
package mailbox

import (
	"context"
	"time"
)

// Message is one raw message from the inbox. Header values may be
// multi-valued; use intake to normalize them.
type Message struct {
	UID       string
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Headers   map[string][]string
	Text      string
	HTML      string
}

// Client fetches messages from the monitored inbox.
type Client interface {
	// Fetch returns messages received at or after since.
	Fetch(ctx context.Context, since time.Time) ([]Message, error)
	Close() error
}
