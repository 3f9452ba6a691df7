package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"hppgate/internal/models"
	"hppgate/internal/payment"
)

// GatewayAccountRepository handles processor credential rows.
type GatewayAccountRepository struct {
	db *gorm.DB
}

func NewGatewayAccountRepository(db *gorm.DB) *GatewayAccountRepository {
	return &GatewayAccountRepository{db: db}
}

// Find returns the enabled account for (accountID, gateway), or nil, nil.
func (r *GatewayAccountRepository) Find(ctx context.Context, accountID uint, gateway string) (*models.GatewayAccount, error) {
	var account models.GatewayAccount
	err := conn(ctx, r.db).
		Where("account_id = ? AND gateway = ? AND enabled = ?", accountID, gateway, true).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *GatewayAccountRepository) Create(ctx context.Context, account *models.GatewayAccount) error {
	return conn(ctx, r.db).Create(account).Error
}

// GatewayConfigLoader resolves the processor credentials for a payable by
// following payable -> payment account -> gateway account. Rows are read on
// every call.
type GatewayConfigLoader struct {
	payables *PayableRepository
	accounts *GatewayAccountRepository
	gateway  string
}

func NewGatewayConfigLoader(db *gorm.DB, gateway string) *GatewayConfigLoader {
	return &GatewayConfigLoader{
		payables: NewPayableRepository(db),
		accounts: NewGatewayAccountRepository(db),
		gateway:  gateway,
	}
}

// LoadGatewayConfig returns nil, nil when the payable or its gateway account
// does not exist or is disabled.
func (l *GatewayConfigLoader) LoadGatewayConfig(ctx context.Context, ref models.PayableRef) (*payment.GatewayConfig, error) {
	payable, err := l.payables.FindByRef(ctx, ref)
	if err != nil || payable == nil {
		return nil, err
	}
	account, err := l.accounts.Find(ctx, payable.AccountID, l.gateway)
	if err != nil || account == nil {
		return nil, err
	}
	return &payment.GatewayConfig{
		AccountID:     account.AccountID,
		ClientID:      account.ClientID,
		APIKey:        account.APIKey,
		WebhookSecret: account.WebhookSecret,
		Sandbox:       account.Environment != "live" && account.Environment != "prod",
	}, nil
}
