package services

import (
  "context"
  "fmt"
  "time"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"
  "gorm.io/gorm"

  "github.com/trackside-org/trackside-backend/internal/db"
  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/normalization"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/types"
  "github.com/trackside-org/trackside-backend/internal/utils"
)

type JWTClaims struct {
  jwt.RegisteredClaims
  Role        string      `json:"role,omitempty"`
}

type AuthService interface {
  RegisterUser(ctx context.Context, user *types.User) error
  Login(ctx context.Context, email, password string) (string, string, error)
  Refresh(ctx context.Context) (string, string, error)
  Logout(ctx context.Context) error

  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)

  GetAccessTTL() time.Duration
}

type authService struct {
  txr               db.Transactor
  log               *logger.Logger
  userRepo          repos.UserRepo
  userTokenRepo     repos.UserTokenRepo
  jwtSecretKey      string
  accessTTL         time.Duration
  refreshTTL        time.Duration
}

func NewAuthService(
  txr               db.Transactor,
  log               *logger.Logger,
  userRepo          repos.UserRepo,
  userTokenRepo     repos.UserTokenRepo,
  jwtSecretKey      string,
  accessTTL         time.Duration,
  refreshTTL        time.Duration,
) AuthService {
  serviceLog := log.With("service", "AuthService")
  return &authService{
    txr:            txr,
    log:            serviceLog,
    userRepo:       userRepo,
    userTokenRepo:  userTokenRepo,
    jwtSecretKey:   jwtSecretKey,
    accessTTL:      accessTTL,
    refreshTTL:     refreshTTL,
  }
}

//----------------------------------------------------------------------------------------------------------------------
// RegisterUser
//----------------------------------------------------------------------------------------------------------------------

// RegisterUser always creates a passenger; admins come from the seed.
func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
  as.log.Info("Starting Register User now...")
  if user == nil {
    return ErrInvalidInput
  }
  //1) Normalize User Fields
  utils.NormalizeUserFields(user)

  //2) Checks on user fields
  if vErr := utils.RegisterInputValidation(ctx, as.userRepo, as.log, user); vErr != nil {
    return asDomain(vErr)
  }

  //3) Hash Password
  if hErr := utils.HashPassword(as.log, user); hErr != nil {
    return asDomain(hErr)
  }

  //4) Create
  user.ID = uuid.New()
  user.Role = types.UserRolePassenger
  user.IsSuspended = false
  user.IsFlaggedForFraud = false
  createdUsers, ucErr := as.userRepo.Create(ctx, nil, []*types.User{user})
  if ucErr != nil {
    as.log.Warn("Failure from AuthService -> UserRepo to create user", "error", ucErr)
    return asDomain(fmt.Errorf("Failure to create user: %w", ucErr))
  }
  if len(createdUsers) == 0 {
    return asDomain(fmt.Errorf("Failure to create user in DB"))
  }
  as.log.Info("Successfully registered user", "userID", user.ID)
  return nil
}

//----------------------------------------------------------------------------------------------------------------------
// Login, Refresh, Logout
//----------------------------------------------------------------------------------------------------------------------

func (as *authService) Login(ctx context.Context, userEmail, userPassword string) (string, string, error) {
  //1) Normalize Input
  email := normalization.ParseEmail(userEmail)
  password := userPassword

  //2) Input Validations
  if vErr := utils.LoginInputValidation(as.log, email, password); vErr != nil {
    return "", "", vErr
  }

  //3) Find User By Email
  users, uSErr := as.userRepo.GetByEmails(ctx, nil, []string{email})
  if uSErr != nil {
    as.log.Warn("Failure to retrieve user by email, Cannot proceed. Returning error.", "error", uSErr)
    return "", "", asDomain(uSErr)
  }
  if len(users) == 0 {
    as.log.Warn("Invalid email, no users returned")
    return "", "", ErrInvalidCredentials
  }
  user := users[0]
  if hErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); hErr != nil {
    as.log.Warn("Invalid password, user password and hash dont match")
    return "", "", ErrInvalidCredentials
  }
  if user.IsSuspended {
    return "", "", ErrSenderSuspended
  }

  //4) Issue a session, clearing out stale ones
  var accessToken string
  var refreshToken string
  if err := as.txr.WithinTransaction(ctx, func(tx *gorm.DB) error {
    if _, dErr := as.userTokenRepo.FullDeleteExpired(ctx, tx, user.ID, time.Now()); dErr != nil {
      return fmt.Errorf("Failed to delete expired user tokens: %w", dErr)
    }
    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      return fmt.Errorf("Generate Access Token Error: %w", genErr)
    }
    accessToken = tok
    refreshToken = uuid.New().String()
    userToken := types.UserToken{
      ID:               uuid.New(),
      UserID:           user.ID,
      AccessToken:      accessToken,
      RefreshToken:     refreshToken,
      ExpiresAt:        time.Now().Add(as.refreshTTL),
    }
    if _, cTErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{&userToken}); cTErr != nil {
      return fmt.Errorf("Create User Token Error: %w", cTErr)
    }
    return nil
  }); err != nil {
    as.log.Warn("Login transaction failed", "error", err)
    return "", "", asDomain(err)
  }
  as.log.Info("User logged in", "userID", user.ID)
  return accessToken, refreshToken, nil
}

func (as *authService) Refresh(ctx context.Context) (string, string, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.RefreshToken == "" {
    as.log.Warn("No refresh token in request data, Cannot proceed")
    return "", "", ErrUnauthorized
  }

  var accessToken string
  var newRefreshTokenStr string
  err := as.txr.WithinTransaction(ctx, func(tx *gorm.DB) error {
    foundTokens, fTErr := as.userTokenRepo.GetByRefreshTokens(ctx, tx, []string{rd.RefreshToken})
    if fTErr != nil {
      return fmt.Errorf("Error fetching refresh token: %w", fTErr)
    }
    if len(foundTokens) == 0 {
      return ErrUnauthorized
    }
    existingToken := foundTokens[0]

    if existingToken.ExpiresAt.Before(time.Now()) {
      if dTErr := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{existingToken}); dTErr != nil {
        return fmt.Errorf("Refresh token expired, error deleting: %w", dTErr)
      }
      return ErrUnauthorized.WithMessage("Refresh token expired")
    }
    users, uErr := as.userRepo.GetByIDs(ctx, tx, []uuid.UUID{existingToken.UserID})
    if uErr != nil {
      return fmt.Errorf("Failed to load user for refresh: %w", uErr)
    }
    if len(users) == 0 {
      return ErrUserNotFound
    }
    user := users[0]
    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      return fmt.Errorf("Failed to generate new access token: %w", genErr)
    }
    accessToken = tok
    newRefreshTokenStr = uuid.New().String()
    newUserToken := types.UserToken{
      ID:               uuid.New(),
      UserID:           user.ID,
      AccessToken:      tok,
      RefreshToken:     newRefreshTokenStr,
      ExpiresAt:        time.Now().Add(as.refreshTTL),
    }
    if _, cErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{&newUserToken}); cErr != nil {
      return fmt.Errorf("Failed to create new user token: %w", cErr)
    }
    if dErr := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{existingToken}); dErr != nil {
      return fmt.Errorf("Failed to remove old refresh token: %w", dErr)
    }
    return nil
  })
  if err != nil {
    as.log.Warn("Failed transaction, Cannot proceed. Returning error.", "error", err)
    return "", "", asDomain(err)
  }
  return accessToken, newRefreshTokenStr, nil
}

func (as *authService) Logout(ctx context.Context) error {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.TokenString == "" {
    as.log.Warn("No access token in request data, Cannot proceed.")
    return ErrUnauthorized
  }
  foundTokens, fTErr := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{rd.TokenString})
  if fTErr != nil {
    return asDomain(fTErr)
  }
  if len(foundTokens) == 0 {
    return nil
  }
  if tDErr := as.userTokenRepo.FullDeleteByTokens(ctx, nil, foundTokens); tDErr != nil {
    as.log.Warn("Error deleting user token", "error", tDErr)
    return asDomain(tDErr)
  }
  as.log.Info("User logged out", "userID", rd.UserID)
  return nil
}

//----------------------------------------------------------------------------------------------------------------------
// Tokens
//----------------------------------------------------------------------------------------------------------------------

func (as *authService) generateAccessToken(user *types.User) (string, error) {
  now := time.Now()
  claims := JWTClaims{
    RegisteredClaims: jwt.RegisteredClaims{
      ID:        uuid.NewString(),
      Subject:   user.ID.String(),
      ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
      IssuedAt:  jwt.NewNumericDate(now),
    },
    Role: string(user.Role),
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  return token.SignedString([]byte(as.jwtSecretKey))
}

// SetContextFromToken verifies the JWT and that its session has not been
// logged out, then stores the caller in the request data.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  if tokenString == "" {
    return ctx, ErrUnauthorized
  }
  parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
    return []byte(as.jwtSecretKey), nil
  }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
  if err != nil {
    return ctx, ErrUnauthorized.Wrap(fmt.Errorf("failed to parse token: %w", err))
  }
  claims, ok := parsedToken.Claims.(*JWTClaims)
  if !ok || !parsedToken.Valid {
    return ctx, ErrUnauthorized.WithMessage("invalid or expired token")
  }
  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return ctx, ErrUnauthorized.WithMessage("invalid user in token")
  }
  foundTokens, fTErr := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{tokenString})
  if fTErr != nil {
    as.log.Warn("Error fetching user token by access token", "error", fTErr)
    return ctx, asDomain(fTErr)
  }
  if len(foundTokens) == 0 {
    return ctx, ErrUnauthorized.WithMessage("session has ended")
  }
  rd := &requestdata.RequestData{
    TokenString:  tokenString,
    RefreshToken: foundTokens[0].RefreshToken,
    UserID:       userID,
    Role:         claims.Role,
  }
  return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}
