// internal/model/trigger.go
package model

const (
	TriggerTick  = "revive.tick"
	TriggerFlush = "outbox.flush"
)

// Trigger asks a worker to run scheduler ticks or an outbox flush.
type Trigger struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit,omitempty"`
}
