// Package events defines the assistant change events sent to Kafka.
package events

import "time"

// Type 标识变更类型。
type Type string

const (
	AssistantCreated Type = "created"
	AssistantUpdated Type = "updated"
	AssistantDeleted Type = "deleted"
)

// AssistantEvent represents a committed change to an assistant record.
type AssistantEvent struct {
	Type        Type   `json:"type"`
	AssistantID string `json:"assistant_id"`
	// Source 是产生事件的实例 ID，消费者据此忽略自己发出的事件。
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}
