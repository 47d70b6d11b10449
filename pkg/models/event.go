package models

import "time"

// IngestEvent is published after a fully successful ingestion. Consumers
// downstream (notification fan-out, search indexing) key on the message ID.
type IngestEvent struct {
	MessageID       string    `json:"message_id"`
	Recipient       string    `json:"recipient"`
	Sender          string    `json:"sender,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	AttachmentCount int       `json:"attachment_count"`
	ReceivedAt      time.Time `json:"received_at"`
}
