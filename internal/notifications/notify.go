// Package notifications formats achievement announcements and delivers them
// to a Discord-compatible webhook.
//
// Delivery is at-least-once from the pipeline's point of view: a failed send
// is surfaced to the caller, never retried here, and deduplication is the
// ledger's job.
package notifications

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Payload is the JSON body of a webhook execution.
type Payload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Content   string  `json:"content,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

// Embed is a rich message card.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Sink delivers one payload.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

// SendError is a non-success response from the webhook.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}
