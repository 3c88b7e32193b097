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

// OneTimeCodeRepo never hands out a code older than types.TransferCredentialTTL
// from its valid lookups; expired rows are invisible without a sweep.
type OneTimeCodeRepo interface {
    // CREATE
    Create(ctx context.Context, tx *gorm.DB, otCodes []*types.OneTimeCode) ([]*types.OneTimeCode, error)

    // READ
    GetLatestValid(ctx context.Context, tx *gorm.DB, email string, ticketID uuid.UUID) (*types.OneTimeCode, error)

    // CONDITIONAL UPDATE
    MarkUsed(ctx context.Context, tx *gorm.DB, otCodeID uuid.UUID) (bool, error)
    MarkUsedByEmailAndTicket(ctx context.Context, tx *gorm.DB, email string, ticketID uuid.UUID) (int64, error)
    IncrementAttempts(ctx context.Context, tx *gorm.DB, otCodeID uuid.UUID, maxAttempts int) (int, bool, error)

    // FULL (HARD) DELETE
    FullDeleteExpired(ctx context.Context, tx *gorm.DB) (int64, error)
}

type oneTimeCodeRepo struct {
    db  *gorm.DB
    log *logger.Logger
    now func() time.Time
}

func NewOneTimeCodeRepo(db *gorm.DB, baseLog *logger.Logger) OneTimeCodeRepo {
    repoLog := baseLog.With("repo", "OneTimeCodeRepo")
    return &oneTimeCodeRepo{db: db, log: repoLog, now: time.Now}
}

func (ocr *oneTimeCodeRepo) cutoff() time.Time {
    return ocr.now().Add(-types.TransferCredentialTTL)
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (ocr *oneTimeCodeRepo) Create(ctx context.Context, tx *gorm.DB, otCodes []*types.OneTimeCode) ([]*types.OneTimeCode, error) {
    ocr.log.Info("Starting Create OneTimeCodes now...")

    transaction := tx
    if transaction == nil {
        transaction = ocr.db
        ocr.log.Debug("Transaction is nil, using ocr.db")
    }

    if len(otCodes) == 0 {
        ocr.log.Debug("No OneTimeCodes provided, returning empty slice")
        return []*types.OneTimeCode{}, nil
    }

    if err := transaction.WithContext(ctx).Create(&otCodes).Error; err != nil {
        ocr.log.Error("Failed to create one-time codes", "error", err)
        return nil, err
    }
    ocr.log.Info("Successfully created one-time codes", "count", len(otCodes))
    return otCodes, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

// GetLatestValid returns the newest unused, unexpired code for the pair, or
// nil when there is none.
func (ocr *oneTimeCodeRepo) GetLatestValid(ctx context.Context, tx *gorm.DB, email string, ticketID uuid.UUID) (*types.OneTimeCode, error) {
    ocr.log.Info("Starting GetLatestValid for OneTimeCode now...", "ticketID", ticketID)

    transaction := tx
    if transaction == nil {
        transaction = ocr.db
        ocr.log.Debug("Transaction is nil, using ocr.db")
    }

    var otc types.OneTimeCode
    err := transaction.WithContext(ctx).
        Where("email = ? AND ticket_id = ? AND used = ? AND created_at > ?", email, ticketID, false, ocr.cutoff()).
        Order("created_at DESC").
        First(&otc).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        ocr.log.Debug("No valid one-time code found", "ticketID", ticketID)
        return nil, nil
    }
    if err != nil {
        ocr.log.Error("Failed to fetch latest one-time code", "error", err)
        return nil, err
    }
    ocr.log.Info("Successfully fetched latest one-time code", "otCodeID", otc.ID)
    return &otc, nil
}

// ----------------------------------------------------------------
// CONDITIONAL UPDATE
// ----------------------------------------------------------------

// MarkUsed flips the code to used only if it is still unused and unexpired.
// The bool reports whether this call won.
func (ocr *oneTimeCodeRepo) MarkUsed(ctx context.Context, tx *gorm.DB, otCodeID uuid.UUID) (bool, error) {
    ocr.log.Info("Starting MarkUsed for OneTimeCode now...", "otCodeID", otCodeID)

    transaction := tx
    if transaction == nil {
        transaction = ocr.db
        ocr.log.Debug("Transaction is nil, using ocr.db")
    }

    now := ocr.now()
    res := transaction.WithContext(ctx).
        Model(&types.OneTimeCode{}).
        Where("id = ? AND used = ? AND created_at > ?", otCodeID, false, now.Add(-types.TransferCredentialTTL)).
        UpdateColumns(map[string]interface{}{
            "used":       true,
            "used_at":    now,
            "updated_at": now,
        })
    if res.Error != nil {
        ocr.log.Error("Failed to mark one-time code used", "error", res.Error)
        return false, res.Error
    }
    if res.RowsAffected != 1 {
        ocr.log.Warn("One-time code already used or expired", "otCodeID", otCodeID)
        return false, nil
    }
    ocr.log.Info("Successfully marked one-time code as used", "otCodeID", otCodeID)
    return true, nil
}

// MarkUsedByEmailAndTicket retires every outstanding code for the pair.
func (ocr *oneTimeCodeRepo) MarkUsedByEmailAndTicket(ctx context.Context, tx *gorm.DB, email string, ticketID uuid.UUID) (int64, error) {
    ocr.log.Info("Starting MarkUsedByEmailAndTicket for OneTimeCodes now...", "ticketID", ticketID)

    transaction := tx
    if transaction == nil {
        transaction = ocr.db
    }

    now := ocr.now()
    res := transaction.WithContext(ctx).
        Model(&types.OneTimeCode{}).
        Where("email = ? AND ticket_id = ? AND used = ?", email, ticketID, false).
        UpdateColumns(map[string]interface{}{
            "used":       true,
            "used_at":    now,
            "updated_at": now,
        })
    if res.Error != nil {
        ocr.log.Error("Failed to retire outstanding one-time codes", "error", res.Error)
        return 0, res.Error
    }
    ocr.log.Info("Successfully retired outstanding one-time codes", "count", res.RowsAffected)
    return res.RowsAffected, nil
}

// IncrementAttempts records a failed guess. Once attempts reaches maxAttempts
// the code is burned in the same statement. Returns the new attempt count and
// whether the code is now used.
func (ocr *oneTimeCodeRepo) IncrementAttempts(ctx context.Context, tx *gorm.DB, otCodeID uuid.UUID, maxAttempts int) (int, bool, error) {
    ocr.log.Info("Starting IncrementAttempts for OneTimeCode now...", "otCodeID", otCodeID)

    transaction := tx
    if transaction == nil {
        transaction = ocr.db
    }

    res := transaction.WithContext(ctx).
        Model(&types.OneTimeCode{}).
        Where("id = ? AND used = ?", otCodeID, false).
        UpdateColumns(map[string]interface{}{
            "attempts":   gorm.Expr("attempts + 1"),
            "used":       gorm.Expr("attempts + 1 >= ?", maxAttempts),
            "updated_at": ocr.now(),
        })
    if res.Error != nil {
        ocr.log.Error("Failed to increment one-time code attempts", "error", res.Error)
        return 0, false, res.Error
    }

    var otc types.OneTimeCode
    if err := transaction.WithContext(ctx).
        Select("attempts", "used").
        Where("id = ?", otCodeID).
        First(&otc).Error; err != nil {
        ocr.log.Error("Failed to reload one-time code after increment", "error", err)
        return 0, false, err
    }
    ocr.log.Info("Recorded failed attempt", "otCodeID", otCodeID, "attempts", otc.Attempts, "burned", otc.Used)
    return otc.Attempts, otc.Used, nil
}

// ----------------------------------------------------------------
// FULL (HARD) DELETE
// ----------------------------------------------------------------

// FullDeleteExpired removes unconsumed codes past their lifetime. Consumed
// codes stay as history.
func (ocr *oneTimeCodeRepo) FullDeleteExpired(ctx context.Context, tx *gorm.DB) (int64, error) {
    transaction := tx
    if transaction == nil {
        transaction = ocr.db
    }

    res := transaction.WithContext(ctx).
        Where("used = ? AND created_at <= ?", false, ocr.cutoff()).
        Delete(&types.OneTimeCode{})
    if res.Error != nil {
        ocr.log.Error("Failed to delete expired one-time codes", "error", res.Error)
        return 0, res.Error
    }
    ocr.log.Debug("Deleted expired one-time codes", "count", res.RowsAffected)
    return res.RowsAffected, nil
}
