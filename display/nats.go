package display

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Update kinds, appended to the subject prefix.
const (
	KindTranscript = "transcript"
	KindAssistant  = "assistant"
	KindError      = "error"
	KindStatus     = "status"
)

// Update is the JSON body of every published message.
type Update struct {
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type NATSConfig struct {
	URL     string
	Subject string
	Timeout time.Duration
}

// NATS publishes updates to <subject>.<kind> so another process, such as a
// desktop overlay, can render them.
type NATS struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger

	// SessionID, when set, stamps each update. Set it before the first
	// update is published.
	SessionID func() string
}

var _ Surface = (*NATS)(nil)

func ConnectNATS(cfg NATSConfig, log *slog.Logger) (*NATS, error) {
	if cfg.Subject == "" {
		cfg.Subject = "conversation"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("conversation-assistant"),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log = log.With(slog.String("component", "nats-display"))
	log.Info("connected to NATS", slog.String("url", cfg.URL), slog.String("subject", cfg.Subject))
	return &NATS{conn: conn, subject: cfg.Subject, log: log}, nil
}

func (n *NATS) ShowTranscript(text string) { n.publish(KindTranscript, text) }

func (n *NATS) ShowAssistant(text string) { n.publish(KindAssistant, text) }

func (n *NATS) ShowError(err error) {
	if err != nil {
		n.publish(KindError, err.Error())
	}
}

func (n *NATS) ShowStatus(status string) { n.publish(KindStatus, status) }

func (n *NATS) publish(kind, text string) {
	update := Update{Kind: kind, Text: text, Timestamp: time.Now().UTC()}
	if n.SessionID != nil {
		update.SessionID = n.SessionID()
	}
	data, err := json.Marshal(update)
	if err != nil {
		n.log.Warn("failed to encode update", slog.String("error", err.Error()))
		return
	}
	if err := n.conn.Publish(n.subject+"."+kind, data); err != nil {
		n.log.Warn("failed to publish update", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

// Close flushes pending updates and closes the connection.
func (n *NATS) Close() {
	n.log.Info("closing NATS connection")
	_ = n.conn.Drain()
}
