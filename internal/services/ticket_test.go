package services

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/events"
  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/types"
)

func newTicketFixture(t *testing.T) (*ticketService, *memStore, *recordingPublisher, *types.User) {
  t.Helper()
  store := newMemStore(time.Now)
  users := &fakeUserRepo{s: store}
  pub := &recordingPublisher{}
  svc := NewTicketService(logger.NewNop(), users, &fakeTicketRepo{s: store}, pub, nil, types.DefaultTransferLimit).(*ticketService)
  owner := &types.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Role: types.UserRolePassenger}
  if _, err := users.Create(context.Background(), nil, []*types.User{owner}); err != nil {
    t.Fatalf("create user: %v", err)
  }
  return svc, store, pub, owner
}

func validIssueInput() IssueTicketInput {
  dep := time.Now().Add(24 * time.Hour)
  return IssueTicketInput{
    OwnerEmail:    "ADA@example.com",
    TrainID:       uuid.New(),
    From:          "Leeds",
    To:            "York",
    DepartureTime: dep,
    ArrivalTime:   dep.Add(time.Hour),
    TrainName:     "Northern Express",
    Coach:         "B",
    Seat:          "7",
    Price:         19.99,
  }
}

func asUser(id uuid.UUID, role string) context.Context {
  return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: id, Role: role})
}

func TestIssueTicket(t *testing.T) {
  svc, _, pub, owner := newTicketFixture(t)
  ticket, err := svc.IssueTicket(context.Background(), validIssueInput())
  if err != nil {
    t.Fatalf("IssueTicket: %v", err)
  }
  if ticket.UserID != owner.ID || ticket.Status != types.TicketStatusActive {
    t.Fatalf("unexpected ticket: %+v", ticket)
  }
  if ticket.TransferLimit != types.DefaultTransferLimit || len(ticket.Transfers) != 0 {
    t.Fatalf("transfer defaults not applied: limit=%d transfers=%d", ticket.TransferLimit, len(ticket.Transfers))
  }
  if ticket.PassengerName != "Ada Lovelace" {
    t.Fatalf("passenger name should default to the owner, got %q", ticket.PassengerName)
  }
  if ticket.QRCode != "trackside:ticket:"+ticket.TicketNumber {
    t.Fatalf("qr payload = %q", ticket.QRCode)
  }
  if got := pub.eventTypes(); len(got) != 1 || got[0] != events.TicketIssued {
    t.Fatalf("events = %v", got)
  }
}

func TestIssueTicketRetriesNumberCollision(t *testing.T) {
  svc, _, _, _ := newTicketFixture(t)
  svc.genNumber = sequence("TKT-AAAAAAAA", "TKT-AAAAAAAA", "TKT-BBBBBBBB")

  first, err := svc.IssueTicket(context.Background(), validIssueInput())
  if err != nil {
    t.Fatalf("first issue: %v", err)
  }
  second, err := svc.IssueTicket(context.Background(), validIssueInput())
  if err != nil {
    t.Fatalf("second issue: %v", err)
  }
  if first.TicketNumber == second.TicketNumber {
    t.Fatalf("ticket numbers collided: %s", first.TicketNumber)
  }
}

func TestIssueTicketValidation(t *testing.T) {
  limit := 11
  negative := -1
  cases := []struct {
    name  string
    mut   func(in *IssueTicketInput)
    want  error
  }{
    {"bad owner email", func(in *IssueTicketInput) { in.OwnerEmail = "nope" }, ErrInvalidInput},
    {"unknown owner", func(in *IssueTicketInput) { in.OwnerEmail = "ghost@example.com" }, ErrUserNotFound},
    {"missing train", func(in *IssueTicketInput) { in.TrainID = uuid.Nil }, ErrInvalidInput},
    {"missing route", func(in *IssueTicketInput) { in.To = " " }, ErrInvalidInput},
    {"arrival before departure", func(in *IssueTicketInput) { in.ArrivalTime = in.DepartureTime.Add(-time.Minute) }, ErrInvalidInput},
    {"negative price", func(in *IssueTicketInput) { in.Price = -1 }, ErrInvalidInput},
    {"limit too high", func(in *IssueTicketInput) { in.TransferLimit = &limit }, ErrInvalidInput},
    {"negative limit", func(in *IssueTicketInput) { in.TransferLimit = &negative }, ErrInvalidInput},
  }
  for _, tc := range cases {
    t.Run(tc.name, func(t *testing.T) {
      svc, _, _, _ := newTicketFixture(t)
      in := validIssueInput()
      tc.mut(&in)
      if _, err := svc.IssueTicket(context.Background(), in); !errors.Is(err, tc.want) {
        t.Fatalf("expected %v, got %v", tc.want, err)
      }
    })
  }
}

func TestGetTicketVisibility(t *testing.T) {
  svc, _, _, owner := newTicketFixture(t)
  ticket, err := svc.IssueTicket(context.Background(), validIssueInput())
  if err != nil {
    t.Fatalf("IssueTicket: %v", err)
  }

  if _, err := svc.GetTicket(asUser(owner.ID, "passenger"), ticket.ID); err != nil {
    t.Fatalf("owner: %v", err)
  }
  if _, err := svc.GetTicket(asUser(uuid.New(), "admin"), ticket.ID); err != nil {
    t.Fatalf("admin: %v", err)
  }
  if _, err := svc.GetTicket(asUser(uuid.New(), "passenger"), ticket.ID); !errors.Is(err, ErrTicketNotFound) {
    t.Fatalf("stranger: expected ErrTicketNotFound, got %v", err)
  }
  if _, err := svc.GetTicket(context.Background(), ticket.ID); !errors.Is(err, ErrUnauthorized) {
    t.Fatalf("anonymous: expected ErrUnauthorized, got %v", err)
  }

  mine, err := svc.ListMyTickets(asUser(owner.ID, "passenger"))
  if err != nil || len(mine) != 1 {
    t.Fatalf("ListMyTickets = %d, %v", len(mine), err)
  }
  none, err := svc.ListMyTickets(asUser(uuid.New(), "passenger"))
  if err != nil || none == nil || len(none) != 0 {
    t.Fatalf("expected an empty non-nil list, got %v, %v", none, err)
  }
}

func TestTicketTransitions(t *testing.T) {
  svc, _, pub, owner := newTicketFixture(t)
  admin := asUser(uuid.New(), "admin")

  ticket, _ := svc.IssueTicket(context.Background(), validIssueInput())
  if _, err := svc.CancelTicket(asUser(owner.ID, "passenger"), ticket.ID); !errors.Is(err, ErrUnauthorized) {
    t.Fatalf("passenger cancel: expected ErrUnauthorized, got %v", err)
  }
  cancelled, err := svc.CancelTicket(admin, ticket.ID)
  if err != nil || cancelled.Status != types.TicketStatusCancelled {
    t.Fatalf("cancel: %v %+v", err, cancelled)
  }
  if _, err := svc.MarkTicketUsed(admin, ticket.ID); !errors.Is(err, ErrTicketNotActive) {
    t.Fatalf("use after cancel: expected ErrTicketNotActive, got %v", err)
  }
  if _, err := svc.CancelTicket(admin, uuid.New()); !errors.Is(err, ErrTicketNotFound) {
    t.Fatalf("unknown ticket: expected ErrTicketNotFound, got %v", err)
  }

  other, _ := svc.IssueTicket(context.Background(), validIssueInput())
  used, err := svc.MarkTicketUsed(admin, other.ID)
  if err != nil || used.Status != types.TicketStatusUsed {
    t.Fatalf("use: %v %+v", err, used)
  }

  got := pub.eventTypes()
  want := []events.Type{events.TicketIssued, events.TicketCancelled, events.TicketIssued, events.TicketUsed}
  if len(got) != len(want) {
    t.Fatalf("events = %v, want %v", got, want)
  }
  for i := range want {
    if got[i] != want[i] {
      t.Fatalf("events = %v, want %v", got, want)
    }
  }
}
