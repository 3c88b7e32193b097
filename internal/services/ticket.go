package services

import (
  "context"
  "fmt"
  "time"

  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/events"
  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/normalization"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/types"
  "github.com/trackside-org/trackside-backend/internal/utils"
)

type IssueTicketInput struct {
  OwnerEmail      string        `json:"ownerEmail"`
  BookingID       *uuid.UUID    `json:"bookingId"`
  TrainID         uuid.UUID     `json:"trainId"`
  From            string        `json:"from"`
  To              string        `json:"to"`
  DepartureTime   time.Time     `json:"departureTime"`
  ArrivalTime     time.Time     `json:"arrivalTime"`
  TrainName       string        `json:"trainName"`
  Coach           string        `json:"coach"`
  Seat            string        `json:"seat"`
  Price           float64       `json:"price"`
  PassengerName   string        `json:"passengerName"`
  PassengerID     string        `json:"passengerId"`
  TransferLimit   *int          `json:"transferLimit"`
}

type TicketService interface {
  IssueTicket(ctx context.Context, in IssueTicketInput) (*types.Ticket, error)
  ListMyTickets(ctx context.Context) ([]*types.Ticket, error)
  GetTicket(ctx context.Context, ticketID uuid.UUID) (*types.Ticket, error)
  CancelTicket(ctx context.Context, ticketID uuid.UUID) (*types.Ticket, error)
  MarkTicketUsed(ctx context.Context, ticketID uuid.UUID) (*types.Ticket, error)
}

type ticketService struct {
  log                   *logger.Logger
  userRepo              repos.UserRepo
  ticketRepo            repos.TicketRepo
  publisher             events.Publisher
  passService           PassService
  defaultTransferLimit  int
  genNumber             func() (string, error)
}

func NewTicketService(log *logger.Logger, userRepo repos.UserRepo, ticketRepo repos.TicketRepo, publisher events.Publisher, passService PassService, defaultTransferLimit int) TicketService {
  if defaultTransferLimit < 0 {
    defaultTransferLimit = types.DefaultTransferLimit
  }
  if publisher == nil {
    publisher = events.NewNopPublisher()
  }
  return &ticketService{
    log:                  log.With("service", "TicketService"),
    userRepo:             userRepo,
    ticketRepo:           ticketRepo,
    publisher:            publisher,
    passService:          passService,
    defaultTransferLimit: defaultTransferLimit,
    genNumber:            utils.GenerateTicketNumber,
  }
}

func (ts *ticketService) IssueTicket(ctx context.Context, in IssueTicketInput) (*types.Ticket, error) {
  ts.log.Info("Starting IssueTicket now...")

  //1) Validate
  if err := validateIssueInput(&in); err != nil {
    ts.log.Warn("Issue ticket input rejected", "error", err)
    return nil, err
  }
  limit := ts.defaultTransferLimit
  if in.TransferLimit != nil {
    limit = *in.TransferLimit
  }

  //2) Resolve owner
  owners, err := ts.userRepo.GetByEmails(ctx, nil, []string{in.OwnerEmail})
  if err != nil {
    return nil, asDomain(err)
  }
  if len(owners) == 0 {
    return nil, ErrUserNotFound.WithMessage("Ticket owner is not a registered user")
  }
  owner := owners[0]
  passengerName := in.PassengerName
  if passengerName == "" {
    passengerName = owner.FullName()
  }

  //3) Unique ticket number
  number, err := ts.uniqueTicketNumber(ctx)
  if err != nil {
    return nil, asDomain(err)
  }

  //4) Persist
  ticket := &types.Ticket{
    TicketNumber:  number,
    UserID:        owner.ID,
    BookingID:     in.BookingID,
    TrainID:       in.TrainID,
    From:          in.From,
    To:            in.To,
    DepartureTime: in.DepartureTime.UTC(),
    ArrivalTime:   in.ArrivalTime.UTC(),
    TrainName:     in.TrainName,
    Coach:         in.Coach,
    Seat:          in.Seat,
    Price:         in.Price,
    QRCode:        "trackside:ticket:" + number,
    PassengerName: passengerName,
    PassengerID:   in.PassengerID,
    Status:        types.TicketStatusActive,
    TransferLimit: limit,
    Transfers:     []types.TicketTransfer{},
  }
  if _, err := ts.ticketRepo.Create(ctx, nil, []*types.Ticket{ticket}); err != nil {
    ts.log.Error("Failed to create ticket", "error", err)
    return nil, asDomain(err)
  }
  ts.log.Info("Ticket issued", "ticketID", ticket.ID, "ticketNumber", number, "ownerID", owner.ID)

  if ts.passService != nil {
    if err := ts.passService.CreateAndUploadPass(ctx, ticket); err != nil {
      ts.log.Warn("Failed to create pass for new ticket", "ticketID", ticket.ID, "error", err)
    }
  }
  ts.publish(ctx, events.New(events.TicketIssued, ticket.ID, owner.ID))
  return ticket, nil
}

func (ts *ticketService) ListMyTickets(ctx context.Context) ([]*types.Ticket, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, ErrUnauthorized
  }
  tickets, err := ts.ticketRepo.GetByUserIDs(ctx, nil, []uuid.UUID{rd.UserID})
  if err != nil {
    return nil, asDomain(err)
  }
  if tickets == nil {
    tickets = []*types.Ticket{}
  }
  return tickets, nil
}

// GetTicket hides other people's tickets behind not found.
func (ts *ticketService) GetTicket(ctx context.Context, ticketID uuid.UUID) (*types.Ticket, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, ErrUnauthorized
  }
  ticket, err := loadTicket(ctx, ts.ticketRepo, nil, ticketID)
  if err != nil {
    return nil, err
  }
  if ticket.UserID != rd.UserID && !rd.IsAdmin() {
    return nil, ErrTicketNotFound
  }
  return ticket, nil
}

func (ts *ticketService) CancelTicket(ctx context.Context, ticketID uuid.UUID) (*types.Ticket, error) {
  return ts.transition(ctx, ticketID, types.TicketStatusCancelled, events.TicketCancelled)
}

func (ts *ticketService) MarkTicketUsed(ctx context.Context, ticketID uuid.UUID) (*types.Ticket, error) {
  return ts.transition(ctx, ticketID, types.TicketStatusUsed, events.TicketUsed)
}

func (ts *ticketService) transition(ctx context.Context, ticketID uuid.UUID, to types.TicketStatus, evtType events.Type) (*types.Ticket, error) {
  log := ts.log.With("ticketID", ticketID, "to", to)
  log.Info("Starting ticket status transition now...")

  rd := requestdata.GetRequestData(ctx)
  if !rd.IsAdmin() {
    return nil, ErrUnauthorized
  }
  ok, err := ts.ticketRepo.TransitionStatus(ctx, nil, ticketID, types.TicketStatusActive, to)
  if err != nil {
    return nil, asDomain(err)
  }
  ticket, err := loadTicket(ctx, ts.ticketRepo, nil, ticketID)
  if err != nil {
    return nil, err
  }
  if !ok {
    log.Warn("Ticket not active, transition refused", "status", ticket.Status)
    return nil, ErrTicketNotActive
  }
  log.Info("Successfully transitioned ticket")
  ts.publish(ctx, events.New(evtType, ticket.ID, ticket.UserID))
  return ticket, nil
}

func (ts *ticketService) uniqueTicketNumber(ctx context.Context) (string, error) {
  for i := 0; i < 5; i++ {
    number, err := ts.genNumber()
    if err != nil {
      return "", err
    }
    exists, err := ts.ticketRepo.TicketNumberExists(ctx, nil, number)
    if err != nil {
      return "", err
    }
    if !exists {
      return number, nil
    }
    ts.log.Debug("Ticket number collision, retrying", "ticketNumber", number)
  }
  return "", fmt.Errorf("could not allocate a unique ticket number")
}

func (ts *ticketService) publish(ctx context.Context, evt events.Event) {
  pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), EventPublishTimeout)
  defer cancel()
  if err := ts.publisher.Publish(pctx, evt); err != nil {
    ts.log.Warn("Failed to publish event", "type", evt.Type, "error", err)
  }
}

func validateIssueInput(in *IssueTicketInput) error {
  in.OwnerEmail = normalization.ParseEmail(in.OwnerEmail)
  in.From = normalization.ParseInputString(in.From)
  in.To = normalization.ParseInputString(in.To)
  in.TrainName = normalization.ParseInputString(in.TrainName)
  in.Coach = normalization.ParseInputString(in.Coach)
  in.Seat = normalization.ParseInputString(in.Seat)
  in.PassengerName = normalization.ParseInputString(in.PassengerName)
  in.PassengerID = normalization.ParseInputString(in.PassengerID)

  switch {
  case !utils.IsValidEmail(in.OwnerEmail):
    return ErrInvalidInput.WithMessage("a valid ownerEmail is required")
  case in.TrainID == uuid.Nil:
    return ErrInvalidInput.WithMessage("trainId is required")
  case in.From == "" || in.To == "":
    return ErrInvalidInput.WithMessage("from and to are required")
  case in.TrainName == "" || in.Coach == "" || in.Seat == "":
    return ErrInvalidInput.WithMessage("trainName, coach and seat are required")
  case in.DepartureTime.IsZero() || in.ArrivalTime.IsZero():
    return ErrInvalidInput.WithMessage("departureTime and arrivalTime are required")
  case !in.ArrivalTime.After(in.DepartureTime):
    return ErrInvalidInput.WithMessage("arrivalTime must be after departureTime")
  case in.Price < 0:
    return ErrInvalidInput.WithMessage("price cannot be negative")
  case in.TransferLimit != nil && (*in.TransferLimit < 0 || *in.TransferLimit > 10):
    return ErrInvalidInput.WithMessage("transferLimit must be between 0 and 10")
  }
  return nil
}
