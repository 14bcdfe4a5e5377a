// Package stats logs one summary line per runtime stats snapshot, the
// operator-facing heartbeat of the process.
package stats

import (
	"context"
	"log/slog"

	"hostmcu-go/bus"
	"hostmcu-go/types"
)

var topicStats = bus.T("runtime", "stats")

type Service struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log}
}

// Start subscribes and logs until the context is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(topicStats)
	defer conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stats service stopping")
			return
		case msg := <-sub.Channel():
			snap, ok := msg.Payload.(types.StatsSnapshot)
			if !ok {
				continue
			}
			s.log.Info("stats",
				"passes", snap.Passes,
				"rx_bytes", snap.RxBytes,
				"tx_bytes", snap.TxBytes,
				"pets", snap.Pets,
				"last_drift_sec", snap.LastDriftSec,
			)
		}
	}
}
