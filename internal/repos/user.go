package repos

import (
    "context"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/trackside-org/trackside-backend/internal/logger"
    "github.com/trackside-org/trackside-backend/internal/types"
)

type UserRepo interface {
    // CREATE
    Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)

    // READ
    GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error)
    GetByEmails(ctx context.Context, tx *gorm.DB, userEmails []string) ([]*types.User, error)
    EmailExists(ctx context.Context, tx *gorm.DB, userEmail string) (bool, error)
    PhoneNumberExists(ctx context.Context, tx *gorm.DB, userPhoneNumber string) (bool, error)
}

type userRepo struct {
    db  *gorm.DB
    log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
    repoLog := baseLog.With("repo", "UserRepo")
    return &userRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
    ur.log.Info("Starting Create Users now...")

    transaction := tx
    if transaction == nil {
        transaction = ur.db
        ur.log.Debug("Transaction is nil, using ur.db")
    }

    if len(users) == 0 {
        ur.log.Debug("No users provided, returning empty slice")
        return []*types.User{}, nil
    }

    if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
        ur.log.Error("Failed to create users", "error", err)
        return nil, err
    }
    ur.log.Info("Successfully created users", "count", len(users))
    return users, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
    ur.log.Info("Starting GetByIDs for Users now...")

    transaction := tx
    if transaction == nil {
        transaction = ur.db
        ur.log.Debug("Transaction is nil, using ur.db")
    }

    var results []*types.User
    if len(userIDs) == 0 {
        ur.log.Debug("No userIDs provided, returning empty slice")
        return results, nil
    }

    if err := transaction.WithContext(ctx).
        Where("id IN ?", userIDs).
        Find(&results).Error; err != nil {
        ur.log.Error("Failed to fetch users by IDs", "error", err)
        return nil, err
    }
    ur.log.Info("Successfully fetched users by IDs", "count", len(results))
    return results, nil
}

func (ur *userRepo) GetByEmails(ctx context.Context, tx *gorm.DB, userEmails []string) ([]*types.User, error) {
    ur.log.Info("Starting GetByEmails for Users now...")

    transaction := tx
    if transaction == nil {
        transaction = ur.db
        ur.log.Debug("Transaction is nil, using ur.db")
    }

    var results []*types.User
    if len(userEmails) == 0 {
        ur.log.Debug("No emails provided, returning empty slice")
        return results, nil
    }

    if err := transaction.WithContext(ctx).
        Where("email IN ?", userEmails).
        Find(&results).Error; err != nil {
        ur.log.Error("Failed to fetch users by emails", "error", err)
        return nil, err
    }
    ur.log.Info("Successfully fetched users by emails", "count", len(results))
    return results, nil
}

func (ur *userRepo) EmailExists(ctx context.Context, tx *gorm.DB, userEmail string) (bool, error) {
    ur.log.Info("Starting EmailExists check now...")

    transaction := tx
    if transaction == nil {
        transaction = ur.db
    }

    var count int64
    if err := transaction.WithContext(ctx).
        Model(&types.User{}).
        Where("email = ?", userEmail).
        Count(&count).Error; err != nil {
        ur.log.Error("Failed to check email existence", "error", err)
        return false, err
    }
    ur.log.Debug("EmailExists result", "exists", count > 0)
    return count > 0, nil
}

func (ur *userRepo) PhoneNumberExists(ctx context.Context, tx *gorm.DB, userPhoneNumber string) (bool, error) {
    ur.log.Info("Starting PhoneNumberExists check now...")

    transaction := tx
    if transaction == nil {
        transaction = ur.db
    }

    var count int64
    if err := transaction.WithContext(ctx).
        Model(&types.User{}).
        Where("phone_number = ?", userPhoneNumber).
        Count(&count).Error; err != nil {
        ur.log.Error("Failed to check phone number existence", "error", err)
        return false, err
    }
    ur.log.Debug("PhoneNumberExists result", "exists", count > 0)
    return count > 0, nil
}
