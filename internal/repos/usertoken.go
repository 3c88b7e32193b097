package repos

import (
    "context"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/trackside-org/trackside-backend/internal/logger"
    "github.com/trackside-org/trackside-backend/internal/types"
)

type UserTokenRepo interface {
    // CREATE
    Create(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) ([]*types.UserToken, error)

    // READ
    GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserToken, error)
    GetByAccessTokens(ctx context.Context, tx *gorm.DB, accessTokens []string) ([]*types.UserToken, error)
    GetByRefreshTokens(ctx context.Context, tx *gorm.DB, refreshTokens []string) ([]*types.UserToken, error)

    // FULL (HARD) DELETE
    FullDeleteByTokens(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) error
    FullDeleteExpired(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (int64, error)
}

type userTokenRepo struct {
    db      *gorm.DB
    log     *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
    repoLog := baseLog.With("repo", "UserTokenRepo")
    return &userTokenRepo{db: db, log: repoLog}
}

//------------------------------------------------------------------------------
// CREATE
//------------------------------------------------------------------------------

func (utr *userTokenRepo) Create(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) ([]*types.UserToken, error) {
    utr.log.Info("Starting Create UserTokens now...")

    // 1) Transaction check
    transaction := tx
    if transaction == nil {
        transaction = utr.db
        utr.log.Debug("Transaction is nil, using utr.db")
    }

    // 2) If no userTokens, skip
    if len(userTokens) == 0 {
        utr.log.Debug("No userTokens provided, returning empty slice")
        return []*types.UserToken{}, nil
    }

    // 3) Create
    if err := transaction.WithContext(ctx).Create(&userTokens).Error; err != nil {
        utr.log.Error("Failed to create userTokens", "error", err)
        return nil, err
    }
    utr.log.Info("Successfully created userTokens", "count", len(userTokens))
    return userTokens, nil
}

//------------------------------------------------------------------------------
// READ
//------------------------------------------------------------------------------

func (utr *userTokenRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserToken, error) {
    utr.log.Info("Starting GetByUserIDs for UserTokens now...")

    transaction := tx
    if transaction == nil {
        transaction = utr.db
    }

    var results []*types.UserToken
    if len(userIDs) == 0 {
        return results, nil
    }
    if err := transaction.WithContext(ctx).
        Where("user_id IN ?", userIDs).
        Find(&results).Error; err != nil {
        utr.log.Error("Failed to fetch userTokens by userIDs", "error", err)
        return nil, err
    }
    utr.log.Info("Successfully fetched userTokens by userIDs", "count", len(results))
    return results, nil
}

func (utr *userTokenRepo) GetByAccessTokens(ctx context.Context, tx *gorm.DB, accessTokens []string) ([]*types.UserToken, error) {
    utr.log.Info("Starting GetByAccessTokens for UserTokens now...")

    transaction := tx
    if transaction == nil {
        transaction = utr.db
    }

    var results []*types.UserToken
    if len(accessTokens) == 0 {
        return results, nil
    }
    if err := transaction.WithContext(ctx).
        Where("access_token IN ?", accessTokens).
        Find(&results).Error; err != nil {
        utr.log.Error("Failed to fetch userTokens by access tokens", "error", err)
        return nil, err
    }
    utr.log.Debug("Fetched userTokens by access tokens", "count", len(results))
    return results, nil
}

func (utr *userTokenRepo) GetByRefreshTokens(ctx context.Context, tx *gorm.DB, refreshTokens []string) ([]*types.UserToken, error) {
    utr.log.Info("Starting GetByRefreshTokens for UserTokens now...")

    transaction := tx
    if transaction == nil {
        transaction = utr.db
    }

    var results []*types.UserToken
    if len(refreshTokens) == 0 {
        return results, nil
    }
    if err := transaction.WithContext(ctx).
        Where("refresh_token IN ?", refreshTokens).
        Find(&results).Error; err != nil {
        utr.log.Error("Failed to fetch userTokens by refresh tokens", "error", err)
        return nil, err
    }
    utr.log.Debug("Fetched userTokens by refresh tokens", "count", len(results))
    return results, nil
}

//------------------------------------------------------------------------------
// FULL (HARD) DELETE
//------------------------------------------------------------------------------

func (utr *userTokenRepo) FullDeleteByTokens(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) error {
    utr.log.Info("Starting FullDeleteByTokens for UserTokens now...")

    transaction := tx
    if transaction == nil {
        transaction = utr.db
    }

    if len(userTokens) == 0 {
        return nil
    }
    ids := make([]uuid.UUID, 0, len(userTokens))
    for _, t := range userTokens {
        ids = append(ids, t.ID)
    }
    if err := transaction.WithContext(ctx).
        Where("id IN ?", ids).
        Delete(&types.UserToken{}).Error; err != nil {
        utr.log.Error("Failed to hard delete userTokens", "error", err)
        return err
    }
    utr.log.Info("Successfully hard deleted userTokens", "count", len(ids))
    return nil
}

// FullDeleteExpired drops a user's sessions whose refresh window has closed.
func (utr *userTokenRepo) FullDeleteExpired(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (int64, error) {
    transaction := tx
    if transaction == nil {
        transaction = utr.db
    }

    res := transaction.WithContext(ctx).
        Where("user_id = ? AND expires_at < ?", userID, now).
        Delete(&types.UserToken{})
    if res.Error != nil {
        utr.log.Error("Failed to delete expired userTokens", "error", res.Error)
        return 0, res.Error
    }
    utr.log.Debug("Deleted expired userTokens", "userID", userID, "count", res.RowsAffected)
    return res.RowsAffected, nil
}
