package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalgrid-dev/signalgrid/pkg/bus"
	"github.com/signalgrid-dev/signalgrid/pkg/protocol"
	"github.com/signalgrid-dev/signalgrid/pkg/signal"
)

// tracerName identifies the subsystem's spans on the global provider.
const tracerName = "signalgrid"

// Service is the emit facade backend logic calls to push signals. One
// logical emission becomes one bus publish; the service also owns this
// process's bus subscription and delivers received envelopes to the
// connections the local registry holds.
//
// Emit calls are safe for concurrent use and return once the publish has
// been accepted — never once clients have received anything.
type Service struct {
	signals *signal.Registry
	bus     bus.Bus
	conns   *ConnRegistry
	topic   string

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	unsubscribe func()
}

// NewService wires the emit facade to a signal registry, a bus, and the
// local connection registry, and subscribes to the signal topic.
func NewService(signals *signal.Registry, b bus.Bus, conns *ConnRegistry, topic string, logger *slog.Logger, metrics *Metrics) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if topic == "" {
		topic = DefaultConfig().Topic
	}

	s := &Service{
		signals: signals,
		bus:     b,
		conns:   conns,
		topic:   topic,
		logger:  logger.With("component", "signal_service"),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}

	unsubscribe, err := b.Subscribe(topic, s.handleBusMessage)
	if err != nil {
		return nil, fmt.Errorf("server: subscribe %s: %w", topic, err)
	}
	s.unsubscribe = unsubscribe
	return s, nil
}

// Broadcast pushes a signal to every authenticated connection on every
// process. The payload is validated before any network effect.
func (s *Service) Broadcast(ctx context.Context, def signal.Definition, payload any) error {
	return s.emit(ctx, def, protocol.ChannelBroadcast, nil, payload)
}

// SendToUser pushes a signal to every connection of one user, wherever
// those connections live. A user with zero connections is not an error.
func (s *Service) SendToUser(ctx context.Context, def signal.Definition, userID string, payload any) error {
	return s.SendToUsers(ctx, def, []string{userID}, payload)
}

// SendToUsers pushes a signal to every connection of the given users.
func (s *Service) SendToUsers(ctx context.Context, def signal.Definition, userIDs []string, payload any) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.emit(ctx, def, protocol.ChannelUser, userIDs, payload)
}

// Close drops the bus subscription. In-flight local deliveries finish on
// their own connections.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Service) emit(ctx context.Context, def signal.Definition, channel protocol.ChannelType, userIDs []string, payload any) error {
	ctx, span := s.tracer.Start(ctx, "signalgrid.emit",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("signal.id", def.ID()),
			attribute.String("signal.channel", string(channel)),
		))
	defer span.End()

	if _, err := s.signals.Lookup(def.ID()); err != nil {
		s.metrics.RecordEmitFailure("unknown_signal")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	raw, err := def.ValidatePayload(payload)
	if err != nil {
		s.metrics.RecordEmitFailure("validation")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	env := &protocol.BusEnvelope{
		Channel:   channel,
		UserIDs:   userIDs,
		SignalID:  def.ID(),
		Payload:   raw,
		Timestamp: protocol.FormatTimestamp(time.Now()),
	}
	data, err := protocol.EncodeBusEnvelope(env)
	if err != nil {
		s.metrics.RecordEmitFailure("encode")
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("server: encode envelope: %w", err)
	}

	if err := s.bus.Publish(ctx, s.topic, data); err != nil {
		s.metrics.RecordEmitFailure("publish")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("server: publish %s: %w", def.ID(), err)
	}

	s.metrics.RecordEmit(string(channel))
	span.SetStatus(codes.Ok, "")
	return nil
}

// handleBusMessage performs local-only delivery for one bus envelope:
// resolve the channel against this process's registry and enqueue to each
// connection found here. Connections held by other processes are their
// problem.
func (s *Service) handleBusMessage(data []byte) {
	env, err := protocol.DecodeBusEnvelope(data)
	if err != nil {
		s.logger.Warn("dropping undecodable bus envelope", "error", err)
		return
	}

	_, span := s.tracer.Start(context.Background(), "signalgrid.deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("signal.id", env.SignalID),
			attribute.String("signal.channel", string(env.Channel)),
		))
	defer span.End()

	var ids []string
	switch env.Channel {
	case protocol.ChannelBroadcast:
		ids = s.conns.AllConnections()
	case protocol.ChannelUser:
		for _, userID := range env.UserIDs {
			ids = append(ids, s.conns.ConnectionsForUser(userID)...)
		}
	}

	wire := env.WireEnvelope()
	delivered := 0
	for _, id := range ids {
		c, ok := s.conns.Get(id)
		if !ok {
			// Removed between snapshot and send: silently skip.
			continue
		}
		switch err := c.Send(wire); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrSendQueueFull):
			// Slow consumer policy: the connection goes, the emission
			// result does not change.
			s.logger.Warn("closing slow consumer",
				"conn_id", c.ID(), "user_id", c.UserID(), "signal_id", env.SignalID)
			s.metrics.RecordQueueDrop()
			c.Close()
		case errors.Is(err, ErrConnClosed):
			// Lost the race with close: fine.
		}
	}

	s.metrics.RecordDelivered(delivered)
	span.SetAttributes(attribute.Int("signal.local_deliveries", delivered))
}

// Broadcast is the typed form of Service.Broadcast: the payload is checked
// against the signal's schema at compile time and its validator at run
// time.
func Broadcast[T any](ctx context.Context, s *Service, sig *signal.Signal[T], payload T) error {
	return s.Broadcast(ctx, sig, payload)
}

// SendToUser is the typed form of Service.SendToUser.
func SendToUser[T any](ctx context.Context, s *Service, sig *signal.Signal[T], userID string, payload T) error {
	return s.SendToUser(ctx, sig, userID, payload)
}

// SendToUsers is the typed form of Service.SendToUsers.
func SendToUsers[T any](ctx context.Context, s *Service, sig *signal.Signal[T], userIDs []string, payload T) error {
	return s.SendToUsers(ctx, sig, userIDs, payload)
}
