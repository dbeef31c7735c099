package progress

import (
	"encoding/json"
	"log/slog"
)

// Type is the kind of a progress message.
type Type string

const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Message is the wire shape consumed by UIs.
type Message struct {
	Type         Type   `json:"type"`
	Percent      *int   `json:"percent,omitempty"`
	SuccessCount *int   `json:"successCount,omitempty"`
	FailCount    *int   `json:"failCount,omitempty"`
	Error        string `json:"error,omitempty"`
}

func ProgressMessage(percent int) Message {
	return Message{Type: TypeProgress, Percent: &percent}
}

func CompleteMessage(successCount, failCount int) Message {
	return Message{Type: TypeComplete, SuccessCount: &successCount, FailCount: &failCount}
}

func ErrorMessage(err string) Message {
	return Message{Type: TypeError, Error: err}
}

// Reporter publishes run progress to a Broker.
type Reporter struct {
	broker *Broker
}

func NewReporter(broker *Broker) *Reporter {
	return &Reporter{broker: broker}
}

func (r *Reporter) Progress(percent int) {
	r.publish(ProgressMessage(percent))
}

func (r *Reporter) Complete(successCount, failCount int) {
	r.publish(CompleteMessage(successCount, failCount))
}

func (r *Reporter) Error(err string) {
	r.publish(ErrorMessage(err))
}

func (r *Reporter) publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("progress message marshal failed", "type", msg.Type, "error", err)
		return
	}
	slog.Debug("progress publish", "type", msg.Type, "subscribers", r.broker.ClientCount())
	r.broker.Publish(Event{Type: msg.Type, Payload: payload})
}
