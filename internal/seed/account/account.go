package account

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/trackside-org/trackside-backend/internal/repos"
	"github.com/trackside-org/trackside-backend/internal/types"
)

// SeedAccount is one entry of the account seed file.
type SeedAccount struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

func LoadAccounts(path string) ([]SeedAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed reading account seed file: %w", err)
	}
	var accounts []SeedAccount
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed unmarshaling accounts: %w", err)
	}
	return accounts, nil
}

// SyncAccounts creates the accounts whose email is not registered yet.
// Existing users are left untouched, passwords included.
func SyncAccounts(
	db				*gorm.DB,
	userRepo			repos.UserRepo,
	accounts			[]SeedAccount,
) (int, error) {
	created := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		emails := make([]string, 0, len(accounts))
		for _, a := range accounts {
			emails = append(emails, strings.ToLower(strings.TrimSpace(a.Email)))
		}
		existing, err := userRepo.GetByEmails(context.Background(), tx, emails)
		if err != nil {
			return fmt.Errorf("failed fetching existing users: %w", err)
		}
		existingMap := make(map[string]bool, len(existing))
		for _, u := range existing {
			existingMap[u.Email] = true
		}

		var toCreate []*types.User
		for i, a := range accounts {
			email := emails[i]
			if email == "" || a.Password == "" || existingMap[email] {
				continue
			}
			hashed, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed hashing password for %s: %w", email, err)
			}
			role := types.UserRolePassenger
			if a.Role == string(types.UserRoleAdmin) {
				role = types.UserRoleAdmin
			}
			toCreate = append(toCreate, &types.User{
				ID:        uuid.New(),
				Role:      role,
				Email:     email,
				Password:  string(hashed),
				FirstName: a.FirstName,
				LastName:  a.LastName,
			})
			existingMap[email] = true
		}
		if _, err := userRepo.Create(context.Background(), tx, toCreate); err != nil {
			return fmt.Errorf("failed creating seed users: %w", err)
		}
		created = len(toCreate)
		return nil
	})
	return created, err
}
