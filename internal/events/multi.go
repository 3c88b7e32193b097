package events

import (
  "context"
  "errors"

  "github.com/trackside-org/trackside-backend/internal/logger"
)

// MultiPublisher fans an event out to every sink. A failing sink does not stop
// the others; the joined error is returned.
type MultiPublisher struct {
  sinks       []Publisher
  log         *logger.Logger
}

func NewMultiPublisher(log *logger.Logger, sinks ...Publisher) *MultiPublisher {
  var live []Publisher
  for _, s := range sinks {
    if s != nil {
      live = append(live, s)
    }
  }
  return &MultiPublisher{sinks: live, log: log.With("service", "MultiPublisher")}
}

func (m *MultiPublisher) Publish(ctx context.Context, evt Event) error {
  var errs []error
  for _, s := range m.sinks {
    if err := s.Publish(ctx, evt); err != nil {
      m.log.Warn("Event sink failed", "type", evt.Type, "ticketID", evt.TicketID, "error", err)
      errs = append(errs, err)
    }
  }
  return errors.Join(errs...)
}
