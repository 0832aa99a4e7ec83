package realtime

import (
	"encoding/json"
	"time"
)

// Phoenix channel events used by the realtime service.
const (
	eventJoin        = "phx_join"
	eventLeave       = "phx_leave"
	eventReply       = "phx_reply"
	eventError       = "phx_error"
	eventClose       = "phx_close"
	eventHeartbeat   = "heartbeat"
	eventAccessToken = "access_token"
	eventChanges     = "postgres_changes"

	phoenixTopic = "phoenix"
	topicPrefix  = "realtime:"
)

// message is one Phoenix frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type changeBinding struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		Broadcast struct {
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []changeBinding `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	IDs  []int64 `json:"ids"`
	Data struct {
		Schema          string          `json:"schema"`
		Table           string          `json:"table"`
		Type            string          `json:"type"`
		CommitTimestamp string          `json:"commit_timestamp"`
		Record          json.RawMessage `json:"record"`
		OldRecord       json.RawMessage `json:"old_record"`
	} `json:"data"`
}

// Event is one row change delivered to a channel.
type Event struct {
	// Topic is the logical topic the channel subscribed to.
	Topic           string
	Type            string
	Schema          string
	Table           string
	CommitTimestamp time.Time
	Record          json.RawMessage
	OldRecord       json.RawMessage
}

// Decode unmarshals the new row into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Record, v)
}

func (p *changePayload) event(topic string) Event {
	ev := Event{
		Topic:     topic,
		Type:      p.Data.Type,
		Schema:    p.Data.Schema,
		Table:     p.Data.Table,
		Record:    p.Data.Record,
		OldRecord: p.Data.OldRecord,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Data.CommitTimestamp); err == nil {
		ev.CommitTimestamp = ts
	}
	return ev
}
