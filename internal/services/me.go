package services

import (
  "context"

  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/types"
)

type MeService interface {
  GetMe(ctx context.Context) (*types.User, error)
}

type meService struct {
  log         *logger.Logger
  userRepo    repos.UserRepo
}

func NewMeService(log *logger.Logger, userRepo repos.UserRepo) MeService {
  return &meService{log: log.With("service", "MeService"), userRepo: userRepo}
}

func (ms *meService) GetMe(ctx context.Context) (*types.User, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    ms.log.Warn("Request Data is not set in context.")
    return nil, ErrUnauthorized
  }
  users, err := ms.userRepo.GetByIDs(ctx, nil, []uuid.UUID{rd.UserID})
  if err != nil {
    return nil, asDomain(err)
  }
  if len(users) == 0 {
    return nil, ErrUserNotFound
  }
  return users[0], nil
}
