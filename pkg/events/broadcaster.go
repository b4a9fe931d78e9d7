package events

import (
	"github.com/signaldock/signaldock/pkg/models"
)

// Broadcaster turns engine activity into the typed frames the hub
// delivers. Frame shapes are part of the client wire contract.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// SignalEvent publishes a signal event on the events channel.
func (b *Broadcaster) SignalEvent(ev models.SignalEvent) {
	b.hub.Broadcast(ChannelEvents, map[string]any{
		"type":      "event",
		"event":     ev.Payload(),
		"timestamp": nowStamp(),
	})
}

// ActionResult publishes an action outcome on the actions channel, with
// pipeline attribution.
func (b *Broadcaster) ActionResult(pipelineID int64, nodeID string, result models.ActionResult) {
	b.hub.Broadcast(ChannelActions, map[string]any{
		"type":        "action",
		"pipeline_id": pipelineID,
		"node_id":     nodeID,
		"result":      result,
		"timestamp":   nowStamp(),
	})
}

// PipelineChange publishes a lifecycle change (loaded, unloaded,
// updated) on the pipelines channel. The change rides inside a status
// object so clients can grow richer pipeline state without a frame
// shape change.
func (b *Broadcaster) PipelineChange(change string, pipelineID int64) {
	b.hub.Broadcast(ChannelPipelines, map[string]any{
		"type":        "pipeline",
		"pipeline_id": pipelineID,
		"status":      map[string]any{"state": change},
		"timestamp":   nowStamp(),
	})
}

// SystemStatus publishes an engine status snapshot on the system channel.
func (b *Broadcaster) SystemStatus(status map[string]any) {
	b.hub.Broadcast(ChannelSystem, map[string]any{
		"type":      "status",
		"status":    status,
		"timestamp": nowStamp(),
	})
}
