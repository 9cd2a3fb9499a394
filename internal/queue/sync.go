package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
)

// Action is what a sync message asks the worker to do with a graph driver.
type Action string

const (
	ActionStart   Action = "start"
	ActionSync    Action = "sync"
	ActionCleanup Action = "cleanup"
	ActionStop    Action = "stop"
)

func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionSync, ActionCleanup, ActionStop:
		return true
	}
	return false
}

type SyncMessage struct {
	Graph         string `json:"graph"`
	Action        Action `json:"action"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func ParseSyncMessage(body []byte) (SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("decode sync message: %w", err)
	}
	if msg.Graph == "" {
		return msg, fmt.Errorf("sync message without graph")
	}
	if msg.Action == "" {
		msg.Action = ActionSync
	}
	if !msg.Action.Valid() {
		return msg, fmt.Errorf("unknown sync action %q", msg.Action)
	}
	return msg, nil
}

// PublishSync enqueues msg on the sync queue.
func PublishSync(ch Publisher, msg SyncMessage) error {
	if !msg.Action.Valid() {
		return fmt.Errorf("unknown sync action %q", msg.Action)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, SyncQueue, data)
}

// ProcessSyncMessage applies one sync message to the registry. Every action
// except stop starts the driver of the graph if it is not running yet. The
// correlation id is recorded on the pass the message causes.
func ProcessSyncMessage(ctx context.Context, registry *consistency.Registry, body []byte) error {
	msg, err := ParseSyncMessage(body)
	if err != nil {
		return err
	}
	log := logger.With("graph", msg.Graph, "action", msg.Action, "correlation_id", msg.CorrelationID)

	if msg.Action == ActionStop {
		if registry.Stop(msg.Graph) {
			log.Info("[Queue] Driver stopped")
		} else {
			log.Debug("[Queue] No driver to stop")
		}
		return nil
	}

	kind := consistency.KindSync
	if msg.Action == ActionCleanup {
		kind = consistency.KindCleanup
	}
	d, started, err := registry.Start(ctx, msg.Graph, consistency.WithCorrelation(kind, msg.CorrelationID))
	if err != nil {
		return err
	}
	if started {
		// both loops run their first pass right away
		log.Info("[Queue] Driver started")
		return nil
	}

	switch msg.Action {
	case ActionStart:
		d.Correlate(kind, msg.CorrelationID)
	case ActionSync:
		d.TriggerSync(msg.CorrelationID)
	case ActionCleanup:
		d.TriggerCleanup(msg.CorrelationID)
	}
	return nil
}
