// Package backplane abstracts fan-out transport between server
// processes. Local delivery and cluster delivery share the same publish
// contract, so the broadcaster does not care how many processes exist.
package backplane

import "context"

// Handler receives a payload published for a channel.
type Handler func(channelID string, payload []byte)

// Backplane carries published events to every process, including the
// publishing one.
type Backplane interface {
	// Publish sends a payload to all subscribed processes.
	Publish(ctx context.Context, channelID string, payload []byte) error

	// Subscribe registers the delivery handler. Must be called once,
	// before the first Publish.
	Subscribe(h Handler)

	// Close releases backplane resources.
	Close() error
}
