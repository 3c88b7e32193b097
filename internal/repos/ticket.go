package repos

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/trackside-org/trackside-backend/internal/logger"
    "github.com/trackside-org/trackside-backend/internal/types"
)

type TicketRepo interface {
    // CREATE
    Create(ctx context.Context, tx *gorm.DB, tickets []*types.Ticket) ([]*types.Ticket, error)

    // READ
    GetByIDs(ctx context.Context, tx *gorm.DB, ticketIDs []uuid.UUID) ([]*types.Ticket, error)
    GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.Ticket, error)
    TicketNumberExists(ctx context.Context, tx *gorm.DB, ticketNumber string) (bool, error)

    // CONDITIONAL UPDATE
    ApplyTransfer(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, transfer types.TicketTransfer, passengerName, passengerID string) (bool, error)
    TransitionStatus(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, from, to types.TicketStatus) (bool, error)
    ExpireArrived(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)

    // PARTIAL UPDATE
    UpdatePass(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, bucketKey, passURL string) error
}

type ticketRepo struct {
    db  *gorm.DB
    log *logger.Logger
}

func NewTicketRepo(db *gorm.DB, baseLog *logger.Logger) TicketRepo {
    repoLog := baseLog.With("repo", "TicketRepo")
    return &ticketRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (tr *ticketRepo) Create(ctx context.Context, tx *gorm.DB, tickets []*types.Ticket) ([]*types.Ticket, error) {
    tr.log.Info("Starting Create Tickets now...")

    transaction := tx
    if transaction == nil {
        transaction = tr.db
        tr.log.Debug("Transaction is nil, using tr.db")
    }

    if len(tickets) == 0 {
        tr.log.Debug("No tickets provided, returning empty slice")
        return []*types.Ticket{}, nil
    }
    for _, t := range tickets {
        if t.Transfers == nil {
            t.Transfers = []types.TicketTransfer{}
        }
    }

    if err := transaction.WithContext(ctx).Create(&tickets).Error; err != nil {
        tr.log.Error("Failed to create tickets", "error", err)
        return nil, err
    }
    tr.log.Info("Successfully created tickets", "count", len(tickets))
    return tickets, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (tr *ticketRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ticketIDs []uuid.UUID) ([]*types.Ticket, error) {
    tr.log.Info("Starting GetByIDs for Tickets now...")

    transaction := tx
    if transaction == nil {
        transaction = tr.db
        tr.log.Debug("Transaction is nil, using tr.db")
    }

    var results []*types.Ticket
    if len(ticketIDs) == 0 {
        tr.log.Debug("No ticketIDs provided, returning empty slice")
        return results, nil
    }

    if err := transaction.WithContext(ctx).
        Where("id IN ?", ticketIDs).
        Find(&results).Error; err != nil {
        tr.log.Error("Failed to fetch tickets by IDs", "error", err)
        return nil, err
    }
    tr.log.Info("Successfully fetched tickets by IDs", "count", len(results))
    return results, nil
}

func (tr *ticketRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.Ticket, error) {
    tr.log.Info("Starting GetByUserIDs for Tickets now...")

    transaction := tx
    if transaction == nil {
        transaction = tr.db
    }

    var results []*types.Ticket
    if len(userIDs) == 0 {
        return results, nil
    }

    if err := transaction.WithContext(ctx).
        Where("user_id IN ?", userIDs).
        Order("departure_time ASC").
        Find(&results).Error; err != nil {
        tr.log.Error("Failed to fetch tickets by userIDs", "error", err)
        return nil, err
    }
    tr.log.Info("Successfully fetched tickets by userIDs", "count", len(results))
    return results, nil
}

func (tr *ticketRepo) TicketNumberExists(ctx context.Context, tx *gorm.DB, ticketNumber string) (bool, error) {
    transaction := tx
    if transaction == nil {
        transaction = tr.db
    }

    var count int64
    if err := transaction.WithContext(ctx).
        Model(&types.Ticket{}).
        Where("ticket_number = ?", ticketNumber).
        Count(&count).Error; err != nil {
        tr.log.Error("Failed to check ticket number existence", "error", err)
        return false, err
    }
    return count > 0, nil
}

// ----------------------------------------------------------------
// CONDITIONAL UPDATE
// ----------------------------------------------------------------

// ApplyTransfer moves the ticket to transfer.ToUserID in a single statement.
// The row only matches while it is still active, still owned by
// transfer.FromUserID and below its transfer limit; the history append happens
// in the same UPDATE. Returns false when nothing matched.
func (tr *ticketRepo) ApplyTransfer(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, transfer types.TicketTransfer, passengerName, passengerID string) (bool, error) {
    tr.log.Info("Starting ApplyTransfer for Ticket now...", "ticketID", ticketID)

    transaction := tx
    if transaction == nil {
        transaction = tr.db
        tr.log.Debug("Transaction is nil, using tr.db")
    }

    record, err := json.Marshal([]types.TicketTransfer{transfer})
    if err != nil {
        return false, fmt.Errorf("marshal transfer record: %w", err)
    }

    res := transaction.WithContext(ctx).
        Model(&types.Ticket{}).
        Where("id = ? AND user_id = ? AND status = ? AND jsonb_array_length(transfers) < transfer_limit",
            ticketID, transfer.FromUserID, types.TicketStatusActive).
        UpdateColumns(map[string]interface{}{
            "user_id":        transfer.ToUserID,
            "passenger_name": passengerName,
            "passenger_id":   passengerID,
            "status":         types.TicketStatusTransferred,
            "transfers":      gorm.Expr("transfers || ?::jsonb", string(record)),
            "updated_at":     transfer.TransferDate,
        })
    if res.Error != nil {
        tr.log.Error("Failed to apply transfer to ticket", "ticketID", ticketID, "error", res.Error)
        return false, res.Error
    }
    if res.RowsAffected != 1 {
        tr.log.Warn("Ticket no longer eligible, transfer not applied", "ticketID", ticketID)
        return false, nil
    }
    tr.log.Info("Successfully applied transfer to ticket", "ticketID", ticketID, "toUserID", transfer.ToUserID)
    return true, nil
}

func (tr *ticketRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, from, to types.TicketStatus) (bool, error) {
    tr.log.Info("Starting TransitionStatus for Ticket now...", "ticketID", ticketID, "from", from, "to", to)

    transaction := tx
    if transaction == nil {
        transaction = tr.db
    }

    res := transaction.WithContext(ctx).
        Model(&types.Ticket{}).
        Where("id = ? AND status = ?", ticketID, from).
        UpdateColumns(map[string]interface{}{
            "status":     to,
            "updated_at": time.Now(),
        })
    if res.Error != nil {
        tr.log.Error("Failed to transition ticket status", "ticketID", ticketID, "error", res.Error)
        return false, res.Error
    }
    if res.RowsAffected != 1 {
        tr.log.Warn("Ticket not in expected status, transition skipped", "ticketID", ticketID, "from", from)
        return false, nil
    }
    tr.log.Info("Successfully transitioned ticket status", "ticketID", ticketID, "to", to)
    return true, nil
}

// ExpireArrived marks active tickets whose arrival time has passed as expired.
func (tr *ticketRepo) ExpireArrived(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
    transaction := tx
    if transaction == nil {
        transaction = tr.db
    }

    res := transaction.WithContext(ctx).
        Model(&types.Ticket{}).
        Where("status = ? AND arrival_time < ?", types.TicketStatusActive, now).
        UpdateColumns(map[string]interface{}{
            "status":     types.TicketStatusExpired,
            "updated_at": now,
        })
    if res.Error != nil {
        tr.log.Error("Failed to expire arrived tickets", "error", res.Error)
        return 0, res.Error
    }
    tr.log.Debug("Expired arrived tickets", "count", res.RowsAffected)
    return res.RowsAffected, nil
}

// ----------------------------------------------------------------
// PARTIAL UPDATE
// ----------------------------------------------------------------

func (tr *ticketRepo) UpdatePass(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, bucketKey, passURL string) error {
    transaction := tx
    if transaction == nil {
        transaction = tr.db
    }

    if err := transaction.WithContext(ctx).
        Model(&types.Ticket{}).
        Where("id = ?", ticketID).
        UpdateColumns(map[string]interface{}{
            "pass_bucket_key": bucketKey,
            "pass_url":        passURL,
        }).Error; err != nil {
        tr.log.Error("Failed to update ticket pass", "ticketID", ticketID, "error", err)
        return err
    }
    tr.log.Debug("Updated ticket pass", "ticketID", ticketID, "passURL", passURL)
    return nil
}
