// Package eventsink mirrors the event stream onto an external bus so
// consumers other than WebSocket clients can follow along.
package eventsink

import (
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// Sink receives every detector batch and every published snapshot.
// Publishing is fire-and-forget; a sink never fails the tick.
type Sink interface {
	PublishEvents(events []models.Event)
	PublishSnapshot(snap *models.Snapshot)
	Connected() bool
	Close()
}

// Noop stands in when no bus is configured.
type Noop struct{}

func (Noop) PublishEvents([]models.Event)      {}
func (Noop) PublishSnapshot(*models.Snapshot)  {}
func (Noop) Connected() bool                   { return false }
func (Noop) Close()                            {}
