package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"script_console/internal/app/execution"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// envelope is the wire format on the status channel.
type envelope struct {
	Origin string                `json:"origin"`
	Event  execution.StatusEvent `json:"event"`
}

// StatusRelay mirrors status events between this instance's hub and a Redis
// channel so observers connected to any instance see every execution.
type StatusRelay struct {
	rdb        *redis.Client
	hub        *execution.Hub
	channel    string
	instanceID string
	logger     *zap.Logger
}

func NewStatusRelay(rdb *redis.Client, hub *execution.Hub, channel, instanceID string, logger *zap.Logger) *StatusRelay {
	return &StatusRelay{
		rdb:        rdb,
		hub:        hub,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger.With(zap.String("channel", channel)),
	}
}

// Start runs until ctx is done.
func (r *StatusRelay) Start(ctx context.Context) error {
	r.logger.Info("status relay started", zap.String("instance", r.instanceID))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.forward(ctx) })
	g.Go(func() error { return r.receive(ctx) })
	err := g.Wait()
	r.logger.Info("status relay stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forward publishes locally produced events to the channel.
func (r *StatusRelay) forward(ctx context.Context) error {
	sub := r.hub.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return nil
		case <-sub.Ready():
			for _, ev := range sub.Drain() {
				if ev.Origin != "" {
					continue
				}
				payload, err := encodeEnvelope(r.instanceID, ev)
				if err != nil {
					r.logger.Error("encode status event", zap.String("job_id", ev.JobID), zap.Error(err))
					continue
				}
				if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					r.logger.Warn("publish status event", zap.String("job_id", ev.JobID), zap.Error(err))
				}
			}
		}
	}
}

// receive republishes events from other instances into the local hub.
func (r *StatusRelay) receive(ctx context.Context) error {
	for {
		err := r.receiveOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("status subscription failed, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (r *StatusRelay) receiveOnce(ctx context.Context) error {
	ps := r.rdb.Subscribe(ctx, r.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			ev, ok, err := decodeEnvelope(r.instanceID, []byte(msg.Payload))
			if err != nil {
				r.logger.Warn("discarding malformed status event", zap.Error(err))
				continue
			}
			if ok {
				r.hub.Publish(ev)
			}
		}
	}
}

func encodeEnvelope(origin string, ev execution.StatusEvent) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Event: ev})
}

// decodeEnvelope reports ok=false for events this instance published itself.
func decodeEnvelope(self string, payload []byte) (execution.StatusEvent, bool, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return execution.StatusEvent{}, false, err
	}
	if env.Origin == "" {
		return execution.StatusEvent{}, false, errors.New("status event without origin")
	}
	if env.Origin == self {
		return execution.StatusEvent{}, false, nil
	}
	ev := env.Event
	ev.Origin = env.Origin
	return ev, true, nil
}
