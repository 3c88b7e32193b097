package repos

import (
    "context"
    "errors"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/trackside-org/trackside-backend/internal/logger"
    "github.com/trackside-org/trackside-backend/internal/types"
)

type TransferTokenRepo interface {
    // CREATE
    Create(ctx context.Context, tx *gorm.DB, tokens []*types.TransferToken) ([]*types.TransferToken, error)

    // READ
    GetValidByToken(ctx context.Context, tx *gorm.DB, token string) (*types.TransferToken, error)

    // CONDITIONAL UPDATE
    MarkUsed(ctx context.Context, tx *gorm.DB, tokenID, usedByUserID uuid.UUID) (bool, error)

    // FULL (HARD) DELETE
    FullDeleteExpired(ctx context.Context, tx *gorm.DB) (int64, error)
}

type transferTokenRepo struct {
    db  *gorm.DB
    log *logger.Logger
    now func() time.Time
}

func NewTransferTokenRepo(db *gorm.DB, baseLog *logger.Logger) TransferTokenRepo {
    repoLog := baseLog.With("repo", "TransferTokenRepo")
    return &transferTokenRepo{db: db, log: repoLog, now: time.Now}
}

func (ttr *transferTokenRepo) cutoff() time.Time {
    return ttr.now().Add(-types.TransferCredentialTTL)
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (ttr *transferTokenRepo) Create(ctx context.Context, tx *gorm.DB, tokens []*types.TransferToken) ([]*types.TransferToken, error) {
    ttr.log.Info("Starting Create TransferTokens now...")

    transaction := tx
    if transaction == nil {
        transaction = ttr.db
        ttr.log.Debug("Transaction is nil, using ttr.db")
    }

    if len(tokens) == 0 {
        return []*types.TransferToken{}, nil
    }

    if err := transaction.WithContext(ctx).Create(&tokens).Error; err != nil {
        ttr.log.Error("Failed to create transfer tokens", "error", err)
        return nil, err
    }
    ttr.log.Info("Successfully created transfer tokens", "count", len(tokens))
    return tokens, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

// GetValidByToken returns nil when the token is unknown, used or expired.
func (ttr *transferTokenRepo) GetValidByToken(ctx context.Context, tx *gorm.DB, token string) (*types.TransferToken, error) {
    ttr.log.Info("Starting GetValidByToken for TransferToken now...")

    transaction := tx
    if transaction == nil {
        transaction = ttr.db
    }

    var tt types.TransferToken
    err := transaction.WithContext(ctx).
        Where("token = ? AND used = ? AND created_at > ?", token, false, ttr.cutoff()).
        First(&tt).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        ttr.log.Debug("No valid transfer token found")
        return nil, nil
    }
    if err != nil {
        ttr.log.Error("Failed to fetch transfer token", "error", err)
        return nil, err
    }
    ttr.log.Info("Successfully fetched transfer token", "tokenID", tt.ID, "ticketID", tt.TicketID)
    return &tt, nil
}

// ----------------------------------------------------------------
// CONDITIONAL UPDATE
// ----------------------------------------------------------------

func (ttr *transferTokenRepo) MarkUsed(ctx context.Context, tx *gorm.DB, tokenID, usedByUserID uuid.UUID) (bool, error) {
    ttr.log.Info("Starting MarkUsed for TransferToken now...", "tokenID", tokenID)

    transaction := tx
    if transaction == nil {
        transaction = ttr.db
    }

    now := ttr.now()
    res := transaction.WithContext(ctx).
        Model(&types.TransferToken{}).
        Where("id = ? AND used = ? AND created_at > ?", tokenID, false, now.Add(-types.TransferCredentialTTL)).
        UpdateColumns(map[string]interface{}{
            "used":            true,
            "used_at":         now,
            "used_by_user_id": usedByUserID,
            "updated_at":      now,
        })
    if res.Error != nil {
        ttr.log.Error("Failed to mark transfer token used", "error", res.Error)
        return false, res.Error
    }
    if res.RowsAffected != 1 {
        ttr.log.Warn("Transfer token already used or expired", "tokenID", tokenID)
        return false, nil
    }
    ttr.log.Info("Successfully marked transfer token as used", "tokenID", tokenID)
    return true, nil
}

// ----------------------------------------------------------------
// FULL (HARD) DELETE
// ----------------------------------------------------------------

func (ttr *transferTokenRepo) FullDeleteExpired(ctx context.Context, tx *gorm.DB) (int64, error) {
    transaction := tx
    if transaction == nil {
        transaction = ttr.db
    }

    res := transaction.WithContext(ctx).
        Where("used = ? AND created_at <= ?", false, ttr.cutoff()).
        Delete(&types.TransferToken{})
    if res.Error != nil {
        ttr.log.Error("Failed to delete expired transfer tokens", "error", res.Error)
        return 0, res.Error
    }
    ttr.log.Debug("Deleted expired transfer tokens", "count", res.RowsAffected)
    return res.RowsAffected, nil
}
