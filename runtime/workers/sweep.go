package workers

import (
	"context"
	"log/slog"
	"time"

	"parley/contract"
	"parley/domain"
	"parley/domain/event"
	"parley/repositories"
)

const defaultSweepInterval = 1 * time.Second

// PunishmentSweepWorker reaps timed punishments whose expiry has passed.
// Expiry lives in the stored record, not in an in-process timer, so the
// sweep survives restarts: the first pass after boot lifts everything
// that lapsed while the process was down.
type PunishmentSweepWorker struct {
	log         *slog.Logger
	punishments repositories.IPunishmentRepository
	transport   contract.Transport
	interval    time.Duration
	now         func() time.Time
}

func NewPunishmentSweepWorker(log *slog.Logger,
	punishments repositories.IPunishmentRepository,
	transport contract.Transport,
	interval time.Duration) *PunishmentSweepWorker {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &PunishmentSweepWorker{
		log:         log,
		punishments: punishments,
		transport:   transport,
		interval:    interval,
		now:         time.Now,
	}
}

func (w *PunishmentSweepWorker) Run(ctx context.Context) error {
	w.log.Info("Starting punishment sweep worker", "interval", w.interval)

	// Recovery pass before the first tick
	w.SweepOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.SweepOnce()
		}
	}
}

// SweepOnce deletes every lapsed punishment and broadcasts the matching
// un-punishment event per reaped record. Store errors are logged and
// retried on the next tick.
func (w *PunishmentSweepWorker) SweepOnce() {
	expired, err := w.punishments.DeleteExpired(w.now())
	if err != nil {
		w.log.Error("Punishment sweep failed", "error", err)
		return
	}

	for _, p := range expired {
		name := event.UserUnmuted
		if p.Type == domain.Ban {
			name = event.UserUnbanned
		}
		w.log.Info("Punishment expired", "user_id", p.UserID, "type", p.Type)
		w.transport.Broadcast(name, event.Unpunished{UserID: p.UserID})
	}
}
