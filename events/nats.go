package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors events onto <subject>.<userID>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("signspeak"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("Connected to NATS", "url", url, "subject", subject)
	return NewNATSPublisher(conn, subject), nil
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Subject returns the subject events for userID are published on.
func (p *NATSPublisher) Subject(userID string) string {
	return p.subject + "." + subjectToken(userID)
}

func (p *NATSPublisher) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err, "type", e.Type)
		return
	}
	if err := p.conn.Publish(p.Subject(e.UserID), data); err != nil {
		slog.Warn("Failed to publish event to NATS", "error", err, "type", e.Type, "userID", e.UserID)
	}
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Warn("Failed to drain NATS connection", "error", err)
		p.conn.Close()
	}
}

// subjectToken keeps a user id from adding tokens or wildcards to a subject.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
