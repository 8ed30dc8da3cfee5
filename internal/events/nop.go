// Package events holds publishers that do not need a broker.
package events

import (
	"context"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
)

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error {
	return nil
}

var _ interfaces.EventPublisher = NopPublisher{}
