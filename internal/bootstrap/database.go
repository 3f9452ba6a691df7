package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"

	"hppgate/internal/models"
)

// Seed is the optional baseline data applied by MigrateAndSeed.
type Seed struct {
	Accounts []models.GatewayAccount `json:"gateway_accounts"`
	Payables []models.Payable        `json:"payables"`
}

// LoadSeed reads a JSON seed file. An empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	seed := &Seed{}
	if path == "" {
		return seed, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if err := json.Unmarshal(raw, seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return seed, nil
}

// Migrate creates or updates every table, including the unique indexes the
// commit path depends on.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

// MigrateAndSeed ensures required tables exist and inserts seed rows that are
// not present yet. Existing rows are left untouched.
func MigrateAndSeed(db *gorm.DB, seed *Seed) error {
	if err := Migrate(db); err != nil {
		return err
	}
	if seed == nil {
		return nil
	}
	if err := seedDefaults(db, seed); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.GatewayAccount{},
		&models.Payable{},
		&models.Payment{},
		&models.IntentRecord{},
		&models.CheckoutAttempt{},
		&models.OrderDelivery{},
		&models.WebhookEvent{},
	}
}

func seedDefaults(db *gorm.DB, seed *Seed) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for i := range seed.Accounts {
			if err := ensureGatewayAccount(tx, &seed.Accounts[i]); err != nil {
				return err
			}
		}
		for i := range seed.Payables {
			if err := ensurePayable(tx, &seed.Payables[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureGatewayAccount(tx *gorm.DB, account *models.GatewayAccount) error {
	var count int64
	if err := tx.Model(&models.GatewayAccount{}).
		Where("account_id = ? AND gateway = ?", account.AccountID, account.Gateway).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if account.Environment == "" {
		account.Environment = "sandbox"
	}
	return tx.Create(account).Error
}

func ensurePayable(tx *gorm.DB, payable *models.Payable) error {
	var count int64
	if err := tx.Model(&models.Payable{}).
		Where("component = ? AND payment_area = ? AND item_id = ?", payable.Component, payable.PaymentArea, payable.ItemID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(payable).Error
}
