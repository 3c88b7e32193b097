package services

import (
  "context"
  "sync"
  "time"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/repos"
)

// Reaper periodically deletes unconsumed codes and tokens past their lifetime
// and expires tickets whose journey is over. Validity never depends on it.
type Reaper struct {
  log               *logger.Logger
  ticketRepo        repos.TicketRepo
  oneTimeCodeRepo   repos.OneTimeCodeRepo
  transferTokenRepo repos.TransferTokenRepo
  interval          time.Duration
  now               func() time.Time

  mu                sync.Mutex
  cancel            context.CancelFunc
  done              chan struct{}
}

type ReapStats struct {
  OneTimeCodes      int64
  TransferTokens    int64
  ExpiredTickets    int64
}

func NewReaper(log *logger.Logger, ticketRepo repos.TicketRepo, oneTimeCodeRepo repos.OneTimeCodeRepo, transferTokenRepo repos.TransferTokenRepo, interval time.Duration) *Reaper {
  if interval <= 0 {
    interval = 5 * time.Minute
  }
  return &Reaper{
    log:               log.With("service", "Reaper"),
    ticketRepo:        ticketRepo,
    oneTimeCodeRepo:   oneTimeCodeRepo,
    transferTokenRepo: transferTokenRepo,
    interval:          interval,
    now:               time.Now,
  }
}

// RunOnce performs a single sweep. Each step runs even if an earlier one failed;
// the first error is returned.
func (r *Reaper) RunOnce(ctx context.Context) (ReapStats, error) {
  var stats ReapStats
  var firstErr error
  keep := func(err error) {
    if err != nil && firstErr == nil {
      firstErr = err
    }
  }

  n, err := r.oneTimeCodeRepo.FullDeleteExpired(ctx, nil)
  keep(err)
  stats.OneTimeCodes = n

  n, err = r.transferTokenRepo.FullDeleteExpired(ctx, nil)
  keep(err)
  stats.TransferTokens = n

  n, err = r.ticketRepo.ExpireArrived(ctx, nil, r.now())
  keep(err)
  stats.ExpiredTickets = n

  if firstErr != nil {
    r.log.Warn("Reaper sweep finished with errors", "error", firstErr)
  } else {
    r.log.Debug("Reaper sweep finished", "otCodes", stats.OneTimeCodes, "tokens", stats.TransferTokens, "tickets", stats.ExpiredTickets)
  }
  return stats, firstErr
}

func (r *Reaper) Start(parent context.Context) {
  r.mu.Lock()
  defer r.mu.Unlock()
  if r.cancel != nil {
    return
  }
  ctx, cancel := context.WithCancel(parent)
  r.cancel = cancel
  r.done = make(chan struct{})

  go func(done chan struct{}) {
    defer close(done)
    ticker := time.NewTicker(r.interval)
    defer ticker.Stop()
    r.log.Info("Reaper started", "interval", r.interval)
    for {
      select {
      case <-ctx.Done():
        r.log.Info("Reaper stopped")
        return
      case <-ticker.C:
        _, _ = r.RunOnce(ctx)
      }
    }
  }(r.done)
}

func (r *Reaper) Stop() {
  r.mu.Lock()
  cancel, done := r.cancel, r.done
  r.cancel, r.done = nil, nil
  r.mu.Unlock()
  if cancel == nil {
    return
  }
  cancel()
  <-done
}
