package seed

import (
	"os"
	"fmt"
	"gorm.io/gorm"

	"github.com/trackside-org/trackside-backend/internal/repos"
	"github.com/trackside-org/trackside-backend/internal/seed/account"
)

func SeedAll(
	db									*gorm.DB,
	userRepo						repos.UserRepo,
) error {
	fmt.Println("Running SeedAll... seeding accounts")

	var accounts []account.SeedAccount
	if path := os.Getenv("SEED_ACCOUNTS_JSON_PATH"); path != "" {
		fromFile, err := account.LoadAccounts(path)
		if err != nil {
			return err
		}
		accounts = append(accounts, fromFile...)
	}
	if email := os.Getenv("SEED_ADMIN_EMAIL"); email != "" {
		accounts = append(accounts, account.SeedAccount{
			Email:     email,
			Password:  os.Getenv("SEED_ADMIN_PASSWORD"),
			FirstName: "Trackside",
			LastName:  "Admin",
			Role:      "admin",
		})
	}
	if len(accounts) == 0 {
		fmt.Println("No seed accounts configured, skipping")
		return nil
	}

	created, err := account.SyncAccounts(db, userRepo, accounts)
	if err != nil {
		return fmt.Errorf("failed to sync accounts: %w", err)
	}

	fmt.Printf("SeedAll Complete! created %d accounts\n", created)
	return nil
}
