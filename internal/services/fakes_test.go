package services

import (
  "bytes"
  "context"
  "errors"
  "sync"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/trackside-org/trackside-backend/internal/events"
  "github.com/trackside-org/trackside-backend/internal/types"
)

//----------------------------------------------------------------------------------------
// Clock
//----------------------------------------------------------------------------------------

type fakeClock struct {
  mu  sync.Mutex
  t   time.Time
}

func newFakeClock() *fakeClock {
  return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
  c.mu.Lock()
  defer c.mu.Unlock()
  return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
  c.mu.Lock()
  c.t = c.t.Add(d)
  c.mu.Unlock()
}

//----------------------------------------------------------------------------------------
// In-memory store
//----------------------------------------------------------------------------------------

// memStore stands in for Postgres. Every fake repo shares it and returns
// copies, so callers never alias stored rows.
type memStore struct {
  mu          sync.Mutex
  now         func() time.Time
  users       map[uuid.UUID]*types.User
  userTokens  map[uuid.UUID]*types.UserToken
  tickets     map[uuid.UUID]*types.Ticket
  otcs        map[uuid.UUID]*types.OneTimeCode
  tokens      map[uuid.UUID]*types.TransferToken
}

func newMemStore(now func() time.Time) *memStore {
  return &memStore{
    now:        now,
    users:      map[uuid.UUID]*types.User{},
    userTokens: map[uuid.UUID]*types.UserToken{},
    tickets:    map[uuid.UUID]*types.Ticket{},
    otcs:       map[uuid.UUID]*types.OneTimeCode{},
    tokens:     map[uuid.UUID]*types.TransferToken{},
  }
}

type memSnapshot struct {
  users       map[uuid.UUID]*types.User
  userTokens  map[uuid.UUID]*types.UserToken
  tickets     map[uuid.UUID]*types.Ticket
  otcs        map[uuid.UUID]*types.OneTimeCode
  tokens      map[uuid.UUID]*types.TransferToken
}

func (s *memStore) snapshot() memSnapshot {
  s.mu.Lock()
  defer s.mu.Unlock()
  snap := memSnapshot{
    users:      map[uuid.UUID]*types.User{},
    userTokens: map[uuid.UUID]*types.UserToken{},
    tickets:    map[uuid.UUID]*types.Ticket{},
    otcs:       map[uuid.UUID]*types.OneTimeCode{},
    tokens:     map[uuid.UUID]*types.TransferToken{},
  }
  for k, v := range s.users {
    snap.users[k] = cloneUser(v)
  }
  for k, v := range s.userTokens {
    c := *v
    snap.userTokens[k] = &c
  }
  for k, v := range s.tickets {
    snap.tickets[k] = cloneTicket(v)
  }
  for k, v := range s.otcs {
    c := *v
    snap.otcs[k] = &c
  }
  for k, v := range s.tokens {
    c := *v
    snap.tokens[k] = &c
  }
  return snap
}

func (s *memStore) restore(snap memSnapshot) {
  s.mu.Lock()
  defer s.mu.Unlock()
  s.users = snap.users
  s.userTokens = snap.userTokens
  s.tickets = snap.tickets
  s.otcs = snap.otcs
  s.tokens = snap.tokens
}

func (s *memStore) ticket(id uuid.UUID) *types.Ticket {
  s.mu.Lock()
  defer s.mu.Unlock()
  if t, ok := s.tickets[id]; ok {
    return cloneTicket(t)
  }
  return nil
}

func (s *memStore) countOtcs() int {
  s.mu.Lock()
  defer s.mu.Unlock()
  return len(s.otcs)
}

func (s *memStore) otc(id uuid.UUID) *types.OneTimeCode {
  s.mu.Lock()
  defer s.mu.Unlock()
  if o, ok := s.otcs[id]; ok {
    c := *o
    return &c
  }
  return nil
}

func (s *memStore) tokenByValue(token string) *types.TransferToken {
  s.mu.Lock()
  defer s.mu.Unlock()
  for _, tt := range s.tokens {
    if tt.Token == token {
      c := *tt
      return &c
    }
  }
  return nil
}

func (s *memStore) live(createdAt time.Time) bool {
  return createdAt.After(s.now().Add(-types.TransferCredentialTTL))
}

func cloneUser(u *types.User) *types.User {
  c := *u
  return &c
}

func cloneTicket(t *types.Ticket) *types.Ticket {
  c := *t
  c.Transfers = append([]types.TicketTransfer{}, t.Transfers...)
  return &c
}

//----------------------------------------------------------------------------------------
// Transactor
//----------------------------------------------------------------------------------------

// fakeTransactor serialises transactions and rolls the store back when fn fails.
type fakeTransactor struct {
  mu    sync.Mutex
  store *memStore
}

func (ft *fakeTransactor) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
  ft.mu.Lock()
  defer ft.mu.Unlock()
  snap := ft.store.snapshot()
  if err := fn(nil); err != nil {
    ft.store.restore(snap)
    return err
  }
  return nil
}

//----------------------------------------------------------------------------------------
// Repos
//----------------------------------------------------------------------------------------

var errFakeDB = errors.New("fake db failure")

type fakeUserRepo struct{ s *memStore }

func (r *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, u := range users {
    if u.ID == uuid.Nil {
      u.ID = uuid.New()
    }
    r.s.users[u.ID] = cloneUser(u)
  }
  return users, nil
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.User, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  out := []*types.User{}
  for _, id := range ids {
    if u, ok := r.s.users[id]; ok {
      out = append(out, cloneUser(u))
    }
  }
  return out, nil
}

func (r *fakeUserRepo) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*types.User, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  out := []*types.User{}
  for _, e := range emails {
    for _, u := range r.s.users {
      if u.Email == e {
        out = append(out, cloneUser(u))
      }
    }
  }
  return out, nil
}

func (r *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
  users, _ := r.GetByEmails(ctx, tx, []string{email})
  return len(users) > 0, nil
}

func (r *fakeUserRepo) PhoneNumberExists(ctx context.Context, tx *gorm.DB, phone string) (bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, u := range r.s.users {
    if u.PhoneNumber != nil && *u.PhoneNumber == phone {
      return true, nil
    }
  }
  return false, nil
}

type fakeUserTokenRepo struct{ s *memStore }

func (r *fakeUserTokenRepo) Create(ctx context.Context, tx *gorm.DB, toks []*types.UserToken) ([]*types.UserToken, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, t := range toks {
    if t.ID == uuid.Nil {
      t.ID = uuid.New()
    }
    c := *t
    r.s.userTokens[t.ID] = &c
  }
  return toks, nil
}

func (r *fakeUserTokenRepo) find(match func(*types.UserToken) bool) []*types.UserToken {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  out := []*types.UserToken{}
  for _, t := range r.s.userTokens {
    if match(t) {
      c := *t
      out = append(out, &c)
    }
  }
  return out
}

func (r *fakeUserTokenRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.UserToken, error) {
  return r.find(func(t *types.UserToken) bool {
    for _, id := range ids {
      if t.UserID == id {
        return true
      }
    }
    return false
  }), nil
}

func (r *fakeUserTokenRepo) GetByAccessTokens(ctx context.Context, tx *gorm.DB, access []string) ([]*types.UserToken, error) {
  return r.find(func(t *types.UserToken) bool {
    for _, a := range access {
      if t.AccessToken == a {
        return true
      }
    }
    return false
  }), nil
}

func (r *fakeUserTokenRepo) GetByRefreshTokens(ctx context.Context, tx *gorm.DB, refresh []string) ([]*types.UserToken, error) {
  return r.find(func(t *types.UserToken) bool {
    for _, rt := range refresh {
      if t.RefreshToken == rt {
        return true
      }
    }
    return false
  }), nil
}

func (r *fakeUserTokenRepo) FullDeleteByTokens(ctx context.Context, tx *gorm.DB, toks []*types.UserToken) error {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, t := range toks {
    delete(r.s.userTokens, t.ID)
  }
  return nil
}

func (r *fakeUserTokenRepo) FullDeleteExpired(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (int64, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  var n int64
  for id, t := range r.s.userTokens {
    if t.UserID == userID && t.ExpiresAt.Before(now) {
      delete(r.s.userTokens, id)
      n++
    }
  }
  return n, nil
}

type fakeTicketRepo struct {
  s       *memStore
  failGet bool
}

func (r *fakeTicketRepo) Create(ctx context.Context, tx *gorm.DB, tickets []*types.Ticket) ([]*types.Ticket, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, t := range tickets {
    if t.ID == uuid.Nil {
      t.ID = uuid.New()
    }
    if t.Transfers == nil {
      t.Transfers = []types.TicketTransfer{}
    }
    r.s.tickets[t.ID] = cloneTicket(t)
  }
  return tickets, nil
}

func (r *fakeTicketRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Ticket, error) {
  if r.failGet {
    return nil, errFakeDB
  }
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  out := []*types.Ticket{}
  for _, id := range ids {
    if t, ok := r.s.tickets[id]; ok {
      out = append(out, cloneTicket(t))
    }
  }
  return out, nil
}

func (r *fakeTicketRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Ticket, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  out := []*types.Ticket{}
  for _, t := range r.s.tickets {
    for _, id := range ids {
      if t.UserID == id {
        out = append(out, cloneTicket(t))
      }
    }
  }
  return out, nil
}

func (r *fakeTicketRepo) TicketNumberExists(ctx context.Context, tx *gorm.DB, number string) (bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, t := range r.s.tickets {
    if t.TicketNumber == number {
      return true, nil
    }
  }
  return false, nil
}

func (r *fakeTicketRepo) ApplyTransfer(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, transfer types.TicketTransfer, passengerName, passengerID string) (bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  t, ok := r.s.tickets[ticketID]
  if !ok || t.UserID != transfer.FromUserID || t.Status != types.TicketStatusActive || len(t.Transfers) >= t.TransferLimit {
    return false, nil
  }
  t.UserID = transfer.ToUserID
  t.PassengerName = passengerName
  t.PassengerID = passengerID
  t.Status = types.TicketStatusTransferred
  t.Transfers = append(t.Transfers, transfer)
  t.UpdatedAt = transfer.TransferDate
  return true, nil
}

func (r *fakeTicketRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, from, to types.TicketStatus) (bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  t, ok := r.s.tickets[ticketID]
  if !ok || t.Status != from {
    return false, nil
  }
  t.Status = to
  return true, nil
}

func (r *fakeTicketRepo) ExpireArrived(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  var n int64
  for _, t := range r.s.tickets {
    if t.Status == types.TicketStatusActive && t.ArrivalTime.Before(now) {
      t.Status = types.TicketStatusExpired
      n++
    }
  }
  return n, nil
}

func (r *fakeTicketRepo) UpdatePass(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, bucketKey, passURL string) error {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  t, ok := r.s.tickets[ticketID]
  if !ok {
    return gorm.ErrRecordNotFound
  }
  t.PassBucketKey = bucketKey
  t.PassURL = passURL
  return nil
}

type fakeOneTimeCodeRepo struct{ s *memStore }

func (r *fakeOneTimeCodeRepo) Create(ctx context.Context, tx *gorm.DB, otcs []*types.OneTimeCode) ([]*types.OneTimeCode, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, o := range otcs {
    if o.ID == uuid.Nil {
      o.ID = uuid.New()
    }
    if o.CreatedAt.IsZero() {
      o.CreatedAt = r.s.now()
    }
    c := *o
    r.s.otcs[o.ID] = &c
  }
  return otcs, nil
}

func (r *fakeOneTimeCodeRepo) GetLatestValid(ctx context.Context, tx *gorm.DB, email string, ticketID uuid.UUID) (*types.OneTimeCode, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  var latest *types.OneTimeCode
  for _, o := range r.s.otcs {
    if o.Email != email || o.TicketID != ticketID || o.Used || !r.s.live(o.CreatedAt) {
      continue
    }
    if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
      latest = o
    }
  }
  if latest == nil {
    return nil, nil
  }
  c := *latest
  return &c, nil
}

func (r *fakeOneTimeCodeRepo) MarkUsed(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  o, ok := r.s.otcs[id]
  if !ok || o.Used || !r.s.live(o.CreatedAt) {
    return false, nil
  }
  now := r.s.now()
  o.Used = true
  o.UsedAt = &now
  return true, nil
}

func (r *fakeOneTimeCodeRepo) MarkUsedByEmailAndTicket(ctx context.Context, tx *gorm.DB, email string, ticketID uuid.UUID) (int64, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  var n int64
  for _, o := range r.s.otcs {
    if o.Email == email && o.TicketID == ticketID && !o.Used {
      o.Used = true
      n++
    }
  }
  return n, nil
}

func (r *fakeOneTimeCodeRepo) IncrementAttempts(ctx context.Context, tx *gorm.DB, id uuid.UUID, maxAttempts int) (int, bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  o, ok := r.s.otcs[id]
  if !ok {
    return 0, false, gorm.ErrRecordNotFound
  }
  if !o.Used {
    o.Attempts++
    o.Used = o.Attempts >= maxAttempts
  }
  return o.Attempts, o.Used, nil
}

func (r *fakeOneTimeCodeRepo) FullDeleteExpired(ctx context.Context, tx *gorm.DB) (int64, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  var n int64
  for id, o := range r.s.otcs {
    if !o.Used && !r.s.live(o.CreatedAt) {
      delete(r.s.otcs, id)
      n++
    }
  }
  return n, nil
}

type fakeTransferTokenRepo struct{ s *memStore }

func (r *fakeTransferTokenRepo) Create(ctx context.Context, tx *gorm.DB, toks []*types.TransferToken) ([]*types.TransferToken, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, t := range toks {
    if t.ID == uuid.Nil {
      t.ID = uuid.New()
    }
    if t.CreatedAt.IsZero() {
      t.CreatedAt = r.s.now()
    }
    c := *t
    r.s.tokens[t.ID] = &c
  }
  return toks, nil
}

func (r *fakeTransferTokenRepo) GetValidByToken(ctx context.Context, tx *gorm.DB, token string) (*types.TransferToken, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  for _, t := range r.s.tokens {
    if t.Token == token && !t.Used && r.s.live(t.CreatedAt) {
      c := *t
      return &c, nil
    }
  }
  return nil, nil
}

func (r *fakeTransferTokenRepo) MarkUsed(ctx context.Context, tx *gorm.DB, tokenID, usedBy uuid.UUID) (bool, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  t, ok := r.s.tokens[tokenID]
  if !ok || t.Used || !r.s.live(t.CreatedAt) {
    return false, nil
  }
  now := r.s.now()
  t.Used = true
  t.UsedAt = &now
  t.UsedByUserID = &usedBy
  return true, nil
}

func (r *fakeTransferTokenRepo) FullDeleteExpired(ctx context.Context, tx *gorm.DB) (int64, error) {
  r.s.mu.Lock()
  defer r.s.mu.Unlock()
  var n int64
  for id, t := range r.s.tokens {
    if !t.Used && !r.s.live(t.CreatedAt) {
      delete(r.s.tokens, id)
      n++
    }
  }
  return n, nil
}

//----------------------------------------------------------------------------------------
// Collaborators
//----------------------------------------------------------------------------------------

type fakeNotifier struct {
  mu    sync.Mutex
  fail  bool
  otps  []TransferOtpNotice
  links []TransferLinkNotice
}

func (n *fakeNotifier) SendTransferOtp(ctx context.Context, notice TransferOtpNotice) error {
  n.mu.Lock()
  defer n.mu.Unlock()
  if n.fail {
    return errors.New("smtp unavailable")
  }
  n.otps = append(n.otps, notice)
  return nil
}

func (n *fakeNotifier) SendTransferLink(ctx context.Context, notice TransferLinkNotice) error {
  n.mu.Lock()
  defer n.mu.Unlock()
  if n.fail {
    return errors.New("smtp unavailable")
  }
  n.links = append(n.links, notice)
  return nil
}

func (n *fakeNotifier) setFail(fail bool) {
  n.mu.Lock()
  n.fail = fail
  n.mu.Unlock()
}

func (n *fakeNotifier) lastOtp() TransferOtpNotice {
  n.mu.Lock()
  defer n.mu.Unlock()
  if len(n.otps) == 0 {
    return TransferOtpNotice{}
  }
  return n.otps[len(n.otps)-1]
}

func (n *fakeNotifier) lastLink() TransferLinkNotice {
  n.mu.Lock()
  defer n.mu.Unlock()
  if len(n.links) == 0 {
    return TransferLinkNotice{}
  }
  return n.links[len(n.links)-1]
}

type recordingPublisher struct {
  mu     sync.Mutex
  events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
  p.mu.Lock()
  p.events = append(p.events, evt)
  p.mu.Unlock()
  return nil
}

func (p *recordingPublisher) eventTypes() []events.Type {
  p.mu.Lock()
  defer p.mu.Unlock()
  out := make([]events.Type, 0, len(p.events))
  for _, e := range p.events {
    out = append(out, e.Type)
  }
  return out
}

type fakePassService struct {
  calls chan *types.Ticket
}

func newFakePassService() *fakePassService {
  return &fakePassService{calls: make(chan *types.Ticket, 8)}
}

func (f *fakePassService) RenderPass(ticket *types.Ticket) (bytes.Buffer, error) {
  return bytes.Buffer{}, nil
}

func (f *fakePassService) CreateAndUploadPass(ctx context.Context, ticket *types.Ticket) error {
  f.calls <- ticket
  return nil
}
