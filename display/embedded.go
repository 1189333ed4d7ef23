package display

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedNATS is an in-process NATS server for when no broker is
// configured but a local front end wants the updates.
type EmbeddedNATS struct {
	ns  *server.Server
	log *slog.Logger
}

// StartEmbeddedNATS listens on host:port; port -1 picks a free one.
func StartEmbeddedNATS(host string, port int, log *slog.Logger) (*EmbeddedNATS, error) {
	opts := &server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}

	log.Info("embedded NATS server started", slog.String("url", ns.ClientURL()))
	return &EmbeddedNATS{ns: ns, log: log}, nil
}

func (e *EmbeddedNATS) ClientURL() string {
	return e.ns.ClientURL()
}

func (e *EmbeddedNATS) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
