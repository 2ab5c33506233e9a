package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobsync/internal/model"
)

var _ model.Notifier = (*RedisNotifier)(nil)

// DefaultChannel is the pub/sub channel sync events are published on.
const DefaultChannel = "jobsync:sync-events"

// RedisNotifier publishes every sync event as JSON on a pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

type eventMessage struct {
	ExternalJobID  int64  `json:"externalJobId"`
	PortalName     string `json:"portalName"`
	PortalJobID    string `json:"portalJobId"`
	Outcome        string `json:"outcome"`
	CanonicalJobID int64  `json:"jobId,omitempty"`
	Message        string `json:"message,omitempty"`
	At             int64  `json:"at"`
}

func encodeEvent(ev model.SyncEvent) ([]byte, error) {
	return json.Marshal(eventMessage{
		ExternalJobID:  ev.ExternalJobID,
		PortalName:     ev.PortalName,
		PortalJobID:    ev.PortalJobID,
		Outcome:        string(ev.Outcome),
		CanonicalJobID: ev.CanonicalJobID,
		Message:        ev.Message,
		At:             ev.At.UnixMilli(),
	})
}

func (n *RedisNotifier) Notify(ctx context.Context, ev model.SyncEvent) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, msg).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.channel, err)
	}
	return nil
}
