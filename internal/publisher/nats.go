package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"shuttletrack/internal/domain"
)

// NATS fans committed resolutions out to downstream consumers
// (analytics, operator dashboards). Arrivals go to arrivals.<route>,
// skip errors to skips.<route>.
type NATS struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNATS(url string, logger *slog.Logger) (*NATS, error) {
	log := logger.With("component", "nats_publisher")

	nc, err := nats.Connect(url,
		nats.Name("shuttletrack"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATS{nc: nc, logger: log}, nil
}

func (p *NATS) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// ResolutionCommitted implements engine.Notifier. Publish failures are
// logged, not propagated: the records are already durable in the sink
// and the feed is best-effort.
func (p *NATS) ResolutionCommitted(res domain.Resolution) {
	if res.Arrival == nil {
		return
	}

	p.publish(fmt.Sprintf("arrivals.%s", subjectToken(res.Arrival.RouteID)), res.Arrival)
	if res.Skip != nil {
		p.publish(fmt.Sprintf("skips.%s", subjectToken(res.Arrival.RouteID)), res.Skip)
	}
}

func (p *NATS) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshal publish payload", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("nats publish failed", "subject", subject, "error", err)
	}
}

// subjectToken strips characters NATS subjects cannot carry.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
