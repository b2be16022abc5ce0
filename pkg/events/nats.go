package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/agoradao/agora/internal/breaker"
	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
)

// DefaultSubjectPrefix is prepended to the event kind to form a subject, e.g.
// "agora.proposal.created".
const DefaultSubjectPrefix = "agora"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

var _ storage.Publisher = (*NATSPublisher)(nil)

// NATSPublisher forwards events as JSON messages.
type NATSPublisher struct {
	conn    Conn
	prefix  string
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// NewNATSPublisher publishes on conn under prefix. An empty prefix selects
// DefaultSubjectPrefix.
func NewNATSPublisher(conn Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// WithBreaker guards the connection with b. While b is open events are
// dropped with a warning instead of being sent.
func (p *NATSPublisher) WithBreaker(b *breaker.Breaker) *NATSPublisher {
	p.breaker = b
	return p
}

// Subject returns the subject kind is published on.
func (p *NATSPublisher) Subject(kind domain.EventKind) string {
	return p.prefix + "." + string(kind)
}

// Publish implements storage.Publisher. Delivery failures are logged and do
// not stop the remaining events.
func (p *NATSPublisher) Publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			p.logger.WarnContext(ctx, "event publish cancelled", "seq", ev.Seq, "error", err)
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.ErrorContext(ctx, "marshal event", "seq", ev.Seq, "error", err)
			continue
		}
		subject := p.Subject(ev.Kind)
		err = p.send(subject, data)
		switch {
		case errors.Is(err, breaker.ErrOpen):
			p.logger.WarnContext(ctx, "event dropped, delivery suspended", "subject", subject, "seq", ev.Seq)
		case err != nil:
			p.logger.ErrorContext(ctx, "publish event", "subject", subject, "seq", ev.Seq, "error", err)
		}
	}
}

func (p *NATSPublisher) send(subject string, data []byte) error {
	if p.breaker == nil {
		return p.conn.Publish(subject, data)
	}
	return p.breaker.Do(func() error { return p.conn.Publish(subject, data) })
}

// Dial connects to the NATS server at url.
func Dial(ctx context.Context, url, name string) (*nats.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}
