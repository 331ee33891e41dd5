package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "rivalscope.changes"

// headerCarrier adapts nats.Msg headers for trace propagation.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSSink publishes each change record as JSON on
// "<prefix>.<changeType>", carrying the trace context in message headers.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger logging.Logger
}

// NewNATSSink wraps an existing connection; Close leaves it open.
func NewNATSSink(nc *nats.Conn, prefix string, logger logging.Logger) *NATSSink {
	return &NATSSink{
		nc:     nc,
		prefix: normalizePrefix(prefix),
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "notify.nats"}),
	}
}

// Connect dials url and returns a sink that owns the connection.
func Connect(url, prefix string, logger logging.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("rivalscope"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	s := NewNATSSink(nc, prefix, logger)
	s.owned = true
	return s, nil
}

// Subject is the subject a record is published on.
func (s *NATSSink) Subject(rec model.ChangeRecord) string {
	return Subject(s.prefix, rec)
}

// Subject joins prefix and the record's change type.
func Subject(prefix string, rec model.ChangeRecord) string {
	ct := string(rec.ChangeType)
	if ct == "" {
		ct = string(model.ChangeOther)
	}
	return normalizePrefix(prefix) + "." + ct
}

func (s *NATSSink) Publish(ctx context.Context, rec model.ChangeRecord) error {
	if s.nc == nil {
		return errors.New("nats sink has no connection")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal change record: %w", err)
	}
	msg := &nats.Msg{Subject: s.Subject(rec), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := s.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	s.logger.Debug("change published", logging.Field{Key: "subject", Value: msg.Subject}, logging.Field{Key: "id", Value: rec.ID})
	return nil
}

// Close drains the connection when the sink owns it.
func (s *NATSSink) Close() error {
	if s.nc == nil || !s.owned {
		return nil
	}
	return s.nc.Drain()
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), ".")
	if p == "" {
		return DefaultSubjectPrefix
	}
	return p
}
