// Package notify announces published datasets to downstream consumers.
package notify

import "context"

// Notice describes one published run.
type Notice struct {
	RunID       string `json:"run_id"`
	SourceID    string `json:"source_id"`
	Destination string `json:"destination"`
	Records     int    `json:"records"`
	Images      int    `json:"images"`
}

// Publisher sends a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
