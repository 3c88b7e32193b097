package services

import (
  "context"
  "crypto/subtle"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/trackside-org/trackside-backend/internal/db"
  "github.com/trackside-org/trackside-backend/internal/events"
  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/normalization"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/types"
  "github.com/trackside-org/trackside-backend/internal/utils"
)

// CredentialTTLSeconds is what clients are told an OTP or claim link lives for.
const CredentialTTLSeconds = int(types.TransferCredentialTTL / time.Second)

type TransferConfig struct {
  ClientURL           string
  MaxOtpAttempts      int
  SupersedeOnVerify   bool
}

// EventPublishTimeout caps how long a lifecycle event may take to reach its
// sinks.
const EventPublishTimeout = 2 * time.Second

type RequestTransferInput struct {
  TicketID        uuid.UUID
  SenderID        uuid.UUID
  RecipientEmail  string
}

type RequestTransferResult struct {
  OneTimeCodeID   uuid.UUID
  ExpiresIn       int
  ExpiresAt       time.Time
}

type VerifyOtpInput struct {
  Email       string
  Code        string
  TicketID    uuid.UUID
}

type VerifyOtpResult struct {
  Token         string
  TransferLink  string
  ExpiresIn     int
  ExpiresAt     time.Time
}

type CompleteTransferInput struct {
  Token             string
  ClaimantID        uuid.UUID
  ReceiverName      string
  ReceiverIDNumber  string
}

type ResendOtpInput struct {
  TicketID        uuid.UUID
  SenderID        uuid.UUID
  RecipientEmail  string
}

// TransferService moves a ticket between accounts in three steps: the owner
// requests a code for the recipient, the code is exchanged for a claim token,
// and the claimant redeems the token.
type TransferService interface {
  RequestTransfer(ctx context.Context, in RequestTransferInput) (*RequestTransferResult, error)
  VerifyOtp(ctx context.Context, in VerifyOtpInput) (*VerifyOtpResult, error)
  CompleteTransfer(ctx context.Context, in CompleteTransferInput) (*types.Ticket, error)
  ValidateToken(ctx context.Context, token string) (*types.Ticket, error)

  ResendOtp(ctx context.Context, in ResendOtpInput) (*RequestTransferResult, error)
  ResendTransferLink(ctx context.Context, token string, requesterID uuid.UUID) (*VerifyOtpResult, error)
}

type transferService struct {
  log               *logger.Logger
  txr               db.Transactor
  userRepo          repos.UserRepo
  ticketRepo        repos.TicketRepo
  oneTimeCodeRepo   repos.OneTimeCodeRepo
  transferTokenRepo repos.TransferTokenRepo
  notifier          NotificationGateway
  publisher         events.Publisher
  passService       PassService
  cfg               TransferConfig
  publishTimeout    time.Duration

  now               func() time.Time
  genCode           func() (string, error)
  genToken          func() (string, error)
}

// NewTransferService wires the orchestrator. passService may be nil, in which
// case passes are not re-rendered after a transfer.
func NewTransferService(
  log *logger.Logger,
  txr db.Transactor,
  userRepo repos.UserRepo,
  ticketRepo repos.TicketRepo,
  oneTimeCodeRepo repos.OneTimeCodeRepo,
  transferTokenRepo repos.TransferTokenRepo,
  notifier NotificationGateway,
  publisher events.Publisher,
  passService PassService,
  cfg TransferConfig,
) TransferService {
  if cfg.MaxOtpAttempts <= 0 {
    cfg.MaxOtpAttempts = 5
  }
  if cfg.ClientURL == "" {
    cfg.ClientURL = "http://localhost:5173"
  }
  if publisher == nil {
    publisher = events.NewNopPublisher()
  }
  return &transferService{
    log:               log.With("service", "TransferService"),
    txr:               txr,
    userRepo:          userRepo,
    ticketRepo:        ticketRepo,
    oneTimeCodeRepo:   oneTimeCodeRepo,
    transferTokenRepo: transferTokenRepo,
    notifier:          notifier,
    publisher:         publisher,
    passService:       passService,
    cfg:               cfg,
    publishTimeout:    EventPublishTimeout,
    now:               time.Now,
    genCode:           utils.GenerateOtpCode,
    genToken:          utils.GenerateTransferToken,
  }
}

//----------------------------------------------------------------------------------------
// RequestTransfer
//----------------------------------------------------------------------------------------

func (ts *transferService) RequestTransfer(ctx context.Context, in RequestTransferInput) (*RequestTransferResult, error) {
  log := ts.log.With("ticketID", in.TicketID, "senderID", in.SenderID)
  log.Info("Starting RequestTransfer now...")

  //1) Recipient address shape
  email := normalization.ParseEmail(in.RecipientEmail)
  if !utils.IsValidEmail(email) {
    log.Warn("Recipient email malformed")
    return nil, ErrInvalidRecipient
  }

  //2) Ticket preconditions
  ticket, err := loadTicket(ctx, ts.ticketRepo, nil, in.TicketID)
  if err != nil {
    return nil, err
  }
  if ticket.UserID != in.SenderID {
    log.Warn("Sender does not own ticket", "ownerID", ticket.UserID)
    return nil, ErrNotOwner
  }
  if err := checkTransferable(ticket); err != nil {
    log.Warn("Ticket not transferable", "status", ticket.Status, "transfers", len(ticket.Transfers))
    return nil, err
  }

  //3) Sender and recipient accounts
  sender, err := ts.findUser(ctx, in.SenderID)
  if err != nil {
    return nil, err
  }
  if sender != nil && sender.IsSuspended {
    return nil, ErrSenderSuspended
  }
  recipient, err := ts.findRecipient(ctx, email)
  if err != nil {
    return nil, err
  }
  if recipient.ID == in.SenderID {
    return nil, ErrInvalidRecipient.WithMessage("You cannot transfer a ticket to yourself")
  }

  //4) Persist the code
  code, err := ts.genCode()
  if err != nil {
    return nil, asDomain(err)
  }
  otc := &types.OneTimeCode{
    Email:     email,
    TicketID:  ticket.ID,
    SenderID:  in.SenderID,
    Code:      code,
    CreatedAt: ts.now(),
  }
  if _, err := ts.oneTimeCodeRepo.Create(ctx, nil, []*types.OneTimeCode{otc}); err != nil {
    log.Error("Failed to create one-time code", "error", err)
    return nil, asDomain(err)
  }
  log.Info("One-time code created", "otCodeID", otc.ID)

  //5) Deliver after commit, announce after delivery
  result := &RequestTransferResult{
    OneTimeCodeID: otc.ID,
    ExpiresIn:     CredentialTTLSeconds,
    ExpiresAt:     otc.ExpiresAt(),
  }
  notice := TransferOtpNotice{
    ToEmail:    email,
    ToPhone:    recipient.PhoneNumber,
    SenderName: displayName(sender),
    Code:       code,
    Ticket:     ticket,
    ExpiresIn:  types.TransferCredentialTTL,
  }
  sendErr := ts.notifier.SendTransferOtp(ctx, notice)

  evt := events.New(events.TransferRequested, ticket.ID, in.SenderID)
  evt.Data["toEmail"] = email
  ts.publish(ctx, evt)

  if sendErr != nil {
    log.Warn("OTP delivery failed, code remains valid", "error", sendErr)
    return result, ErrNotificationDeliveryFailed.Wrap(sendErr)
  }
  log.Info("Successfully requested transfer")
  return result, nil
}

//----------------------------------------------------------------------------------------
// VerifyOtp
//----------------------------------------------------------------------------------------

func (ts *transferService) VerifyOtp(ctx context.Context, in VerifyOtpInput) (*VerifyOtpResult, error) {
  log := ts.log.With("ticketID", in.TicketID)
  log.Info("Starting VerifyOtp now...")

  email := normalization.ParseEmail(in.Email)
  if email == "" || in.Code == "" || in.TicketID == uuid.Nil {
    return nil, ErrInvalidInput.WithMessage("email, otp and ticketId are required")
  }

  //1) Latest outstanding code for the pair
  otc, err := ts.oneTimeCodeRepo.GetLatestValid(ctx, nil, email, in.TicketID)
  if err != nil {
    return nil, asDomain(err)
  }
  if otc == nil {
    log.Warn("No valid one-time code")
    return nil, ErrOtpNotFound
  }

  //2) Exact comparison; a miss counts against the code
  if subtle.ConstantTimeCompare([]byte(otc.Code), []byte(in.Code)) != 1 {
    attempts, burned, err := ts.oneTimeCodeRepo.IncrementAttempts(ctx, nil, otc.ID, ts.cfg.MaxOtpAttempts)
    if err != nil {
      return nil, asDomain(err)
    }
    log.Warn("OTP mismatch", "otCodeID", otc.ID, "attempts", attempts, "burned", burned)
    if burned {
      return nil, ErrOtpAttemptsExceeded
    }
    return nil, ErrOtpMismatch
  }

  //3) Consume the code and issue the token together
  var ticket *types.Ticket
  var issued *types.TransferToken
  err = ts.txr.WithinTransaction(ctx, func(tx *gorm.DB) error {
    t, err := loadTicket(ctx, ts.ticketRepo, tx, otc.TicketID)
    if err != nil {
      return err
    }
    if t.UserID != otc.SenderID {
      return ErrNotOwner
    }
    if err := checkTransferable(t); err != nil {
      return err
    }

    won, err := ts.oneTimeCodeRepo.MarkUsed(ctx, tx, otc.ID)
    if err != nil {
      return err
    }
    if !won {
      return ErrOtpNotFound
    }
    if ts.cfg.SupersedeOnVerify {
      if _, err := ts.oneTimeCodeRepo.MarkUsedByEmailAndTicket(ctx, tx, email, otc.TicketID); err != nil {
        return err
      }
    }

    tokenStr, err := ts.genToken()
    if err != nil {
      return err
    }
    otcID := otc.ID
    tt := &types.TransferToken{
      Token:         tokenStr,
      TicketID:      t.ID,
      FromUserID:    otc.SenderID,
      ToEmail:       email,
      OneTimeCodeID: &otcID,
      CreatedAt:     ts.now(),
    }
    if _, err := ts.transferTokenRepo.Create(ctx, tx, []*types.TransferToken{tt}); err != nil {
      return err
    }
    ticket, issued = t, tt
    return nil
  })
  if err != nil {
    log.Warn("VerifyOtp transaction rolled back", "error", err)
    return nil, asDomain(err)
  }
  log.Info("Transfer token issued", "tokenID", issued.ID, "otCodeID", otc.ID)

  //4) Deliver the claim link, then announce
  result := ts.tokenResult(issued)
  sendErr := ts.sendLink(ctx, issued, ticket, result.TransferLink)

  evt := events.New(events.TransferVerified, ticket.ID, otc.SenderID)
  evt.Data["toEmail"] = email
  ts.publish(ctx, evt)

  if sendErr != nil {
    log.Warn("Claim link delivery failed, token remains valid", "error", sendErr)
    return result, ErrNotificationDeliveryFailed.Wrap(sendErr)
  }
  log.Info("Successfully verified OTP")
  return result, nil
}

//----------------------------------------------------------------------------------------
// CompleteTransfer
//----------------------------------------------------------------------------------------

func (ts *transferService) CompleteTransfer(ctx context.Context, in CompleteTransferInput) (*types.Ticket, error) {
  log := ts.log.With("claimantID", in.ClaimantID)
  log.Info("Starting CompleteTransfer now...")

  token := normalization.ParseInputString(in.Token)
  if token == "" {
    return nil, ErrTokenNotFound
  }
  receiverName := normalization.ParseInputString(in.ReceiverName)
  if receiverName == "" || in.ClaimantID == uuid.Nil {
    return nil, ErrInvalidInput.WithMessage("receiverName is required")
  }
  receiverIDNumber := normalization.ParseInputString(in.ReceiverIDNumber)

  var updated *types.Ticket
  var fromUserID uuid.UUID
  err := ts.txr.WithinTransaction(ctx, func(tx *gorm.DB) error {
    //1) Token still redeemable
    tt, err := ts.transferTokenRepo.GetValidByToken(ctx, tx, token)
    if err != nil {
      return err
    }
    if tt == nil {
      return ErrTokenNotFound
    }

    //2) Ticket still transferable
    ticket, err := loadTicket(ctx, ts.ticketRepo, tx, tt.TicketID)
    if err != nil {
      return err
    }
    if err := checkTransferable(ticket); err != nil {
      return err
    }

    //3) Conditional writes, token first
    won, err := ts.transferTokenRepo.MarkUsed(ctx, tx, tt.ID, in.ClaimantID)
    if err != nil {
      return err
    }
    if !won {
      return ErrTokenNotFound
    }
    record := types.TicketTransfer{
      FromUserID:      tt.FromUserID,
      ToUserID:        in.ClaimantID,
      TransferDate:    ts.now().UTC(),
      TransferTokenID: tt.ID,
    }
    applied, err := ts.ticketRepo.ApplyTransfer(ctx, tx, ticket.ID, record, receiverName, receiverIDNumber)
    if err != nil {
      return err
    }
    if !applied {
      return ts.classifyLostTicketRace(ctx, tx, ticket.ID, tt.FromUserID)
    }

    //4) Read back the committed shape
    updated, err = loadTicket(ctx, ts.ticketRepo, tx, ticket.ID)
    fromUserID = tt.FromUserID
    return err
  })
  if err != nil {
    log.Warn("CompleteTransfer rolled back", "error", err)
    return nil, asDomain(err)
  }
  log.Info("Successfully completed transfer", "ticketID", updated.ID, "fromUserID", fromUserID)

  evt := events.New(events.TransferCompleted, updated.ID, fromUserID, in.ClaimantID)
  evt.Data["ticketNumber"] = updated.TicketNumber
  ts.publish(ctx, evt)

  if ts.passService != nil {
    passTicket := *updated
    go func() {
      pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
      defer cancel()
      if err := ts.passService.CreateAndUploadPass(pctx, &passTicket); err != nil {
        ts.log.Warn("Failed to refresh pass after transfer", "ticketID", passTicket.ID, "error", err)
      }
    }()
  }
  return updated, nil
}

// classifyLostTicketRace explains why the conditional ticket update matched
// nothing. The caller rolls back either way.
func (ts *transferService) classifyLostTicketRace(ctx context.Context, tx *gorm.DB, ticketID, fromUserID uuid.UUID) error {
  current, err := loadTicket(ctx, ts.ticketRepo, tx, ticketID)
  if err != nil {
    return err
  }
  if err := checkTransferable(current); err != nil {
    return err
  }
  if current.UserID != fromUserID {
    return ErrTicketNotActive.WithMessage("Ticket changed owner before this transfer completed")
  }
  return ErrTicketNotActive
}

//----------------------------------------------------------------------------------------
// ValidateToken
//----------------------------------------------------------------------------------------

func (ts *transferService) ValidateToken(ctx context.Context, token string) (*types.Ticket, error) {
  token = normalization.ParseInputString(token)
  if token == "" {
    return nil, ErrTokenNotFound
  }
  tt, err := ts.transferTokenRepo.GetValidByToken(ctx, nil, token)
  if err != nil {
    return nil, asDomain(err)
  }
  if tt == nil {
    return nil, ErrTokenNotFound
  }
  ticket, err := loadTicket(ctx, ts.ticketRepo, nil, tt.TicketID)
  if err != nil {
    return nil, err
  }
  if !ticket.IsActive() {
    return nil, ErrTicketNotActive
  }
  return ticket, nil
}

//----------------------------------------------------------------------------------------
// Resend
//----------------------------------------------------------------------------------------

// ResendOtp re-delivers the newest outstanding code. Nothing is created.
func (ts *transferService) ResendOtp(ctx context.Context, in ResendOtpInput) (*RequestTransferResult, error) {
  log := ts.log.With("ticketID", in.TicketID, "senderID", in.SenderID)
  log.Info("Starting ResendOtp now...")

  email := normalization.ParseEmail(in.RecipientEmail)
  if !utils.IsValidEmail(email) {
    return nil, ErrInvalidRecipient
  }
  ticket, err := loadTicket(ctx, ts.ticketRepo, nil, in.TicketID)
  if err != nil {
    return nil, err
  }
  if ticket.UserID != in.SenderID {
    return nil, ErrNotOwner
  }
  if err := checkTransferable(ticket); err != nil {
    return nil, err
  }

  otc, err := ts.oneTimeCodeRepo.GetLatestValid(ctx, nil, email, ticket.ID)
  if err != nil {
    return nil, asDomain(err)
  }
  if otc == nil || otc.SenderID != in.SenderID {
    return nil, ErrOtpNotFound
  }

  sender, err := ts.findUser(ctx, in.SenderID)
  if err != nil {
    return nil, err
  }
  recipient, err := ts.findRecipient(ctx, email)
  if err != nil {
    return nil, err
  }

  remaining := otc.ExpiresAt().Sub(ts.now())
  result := &RequestTransferResult{
    OneTimeCodeID: otc.ID,
    ExpiresIn:     int(remaining / time.Second),
    ExpiresAt:     otc.ExpiresAt(),
  }
  notice := TransferOtpNotice{
    ToEmail:    email,
    ToPhone:    recipient.PhoneNumber,
    SenderName: displayName(sender),
    Code:       otc.Code,
    Ticket:     ticket,
    ExpiresIn:  remaining,
  }
  if err := ts.notifier.SendTransferOtp(ctx, notice); err != nil {
    log.Warn("OTP re-delivery failed", "error", err)
    return result, ErrNotificationDeliveryFailed.Wrap(err)
  }
  log.Info("Successfully re-sent OTP", "otCodeID", otc.ID)
  return result, nil
}

// ResendTransferLink re-delivers a still valid claim link. Only the sender who
// verified the code may ask.
func (ts *transferService) ResendTransferLink(ctx context.Context, token string, requesterID uuid.UUID) (*VerifyOtpResult, error) {
  log := ts.log.With("requesterID", requesterID)
  log.Info("Starting ResendTransferLink now...")

  token = normalization.ParseInputString(token)
  if token == "" {
    return nil, ErrTokenNotFound
  }
  tt, err := ts.transferTokenRepo.GetValidByToken(ctx, nil, token)
  if err != nil {
    return nil, asDomain(err)
  }
  if tt == nil {
    return nil, ErrTokenNotFound
  }
  if tt.FromUserID != requesterID {
    return nil, ErrNotOwner
  }
  ticket, err := loadTicket(ctx, ts.ticketRepo, nil, tt.TicketID)
  if err != nil {
    return nil, err
  }
  if !ticket.IsActive() {
    return nil, ErrTicketNotActive
  }

  result := ts.tokenResult(tt)
  if err := ts.sendLink(ctx, tt, ticket, result.TransferLink); err != nil {
    log.Warn("Claim link re-delivery failed", "error", err)
    return result, ErrNotificationDeliveryFailed.Wrap(err)
  }
  log.Info("Successfully re-sent claim link", "tokenID", tt.ID)
  return result, nil
}

//----------------------------------------------------------------------------------------
// Helpers
//----------------------------------------------------------------------------------------

func (ts *transferService) transferLink(token string) string {
  return strings.TrimRight(ts.cfg.ClientURL, "/") + "/receive/" + token
}

func (ts *transferService) tokenResult(tt *types.TransferToken) *VerifyOtpResult {
  remaining := tt.ExpiresAt().Sub(ts.now())
  if remaining < 0 {
    remaining = 0
  }
  return &VerifyOtpResult{
    Token:        tt.Token,
    TransferLink: ts.transferLink(tt.Token),
    ExpiresIn:    int(remaining / time.Second),
    ExpiresAt:    tt.ExpiresAt(),
  }
}

func (ts *transferService) sendLink(ctx context.Context, tt *types.TransferToken, ticket *types.Ticket, link string) error {
  sender, err := ts.findUser(ctx, tt.FromUserID)
  if err != nil {
    return err
  }
  var phone *string
  if users, err := ts.userRepo.GetByEmails(ctx, nil, []string{tt.ToEmail}); err == nil && len(users) > 0 {
    phone = users[0].PhoneNumber
  }
  return ts.notifier.SendTransferLink(ctx, TransferLinkNotice{
    ToEmail:    tt.ToEmail,
    ToPhone:    phone,
    SenderName: displayName(sender),
    Link:       link,
    Ticket:     ticket,
    ExpiresIn:  tt.ExpiresAt().Sub(ts.now()),
  })
}

func (ts *transferService) findUser(ctx context.Context, userID uuid.UUID) (*types.User, error) {
  users, err := ts.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
  if err != nil {
    return nil, asDomain(err)
  }
  if len(users) == 0 {
    return nil, nil
  }
  return users[0], nil
}

// findRecipient resolves a registered account that is allowed to receive.
func (ts *transferService) findRecipient(ctx context.Context, email string) (*types.User, error) {
  users, err := ts.userRepo.GetByEmails(ctx, nil, []string{email})
  if err != nil {
    return nil, asDomain(err)
  }
  if len(users) == 0 {
    return nil, ErrRecipientNotFound
  }
  recipient := users[0]
  if recipient.IsSuspended || recipient.IsFlaggedForFraud {
    return nil, ErrInvalidRecipient.WithMessage("Recipient cannot receive tickets")
  }
  return recipient, nil
}

// publish is bounded and detached from the request cancellation.
func (ts *transferService) publish(ctx context.Context, evt events.Event) {
  pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ts.publishTimeout)
  defer cancel()
  if err := ts.publisher.Publish(pctx, evt); err != nil {
    ts.log.Warn("Failed to publish event", "type", evt.Type, "ticketID", evt.TicketID, "error", err)
  }
}

func loadTicket(ctx context.Context, ticketRepo repos.TicketRepo, tx *gorm.DB, ticketID uuid.UUID) (*types.Ticket, error) {
  if ticketID == uuid.Nil {
    return nil, ErrTicketNotFound
  }
  tickets, err := ticketRepo.GetByIDs(ctx, tx, []uuid.UUID{ticketID})
  if err != nil {
    return nil, asDomain(err)
  }
  if len(tickets) == 0 {
    return nil, ErrTicketNotFound
  }
  return tickets[0], nil
}

func checkTransferable(t *types.Ticket) error {
  if !t.IsActive() {
    return ErrTicketNotActive
  }
  if !t.HasTransfersRemaining() {
    return ErrTransferLimitReached
  }
  return nil
}

func displayName(u *types.User) string {
  if u == nil || u.FullName() == "" {
    return "A Trackside user"
  }
  return u.FullName()
}
