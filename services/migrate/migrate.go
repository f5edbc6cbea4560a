// Package migrate creates the tables of every service at startup when
// DATABASE.AUTO_MIGRATE is set.
package migrate

import (
	"creatorpay/pkg/config"
	"creatorpay/pkg/db"
	"creatorpay/services/account"
	"creatorpay/services/payout"
	"creatorpay/services/reward"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrate", fx.Invoke(Run))

func Models() []any {
	models := []any{
		&wallet.Wallet{},
		&transaction.Transaction{},
		&account.CreatorAccount{},
	}
	models = append(models, reward.Models()...)
	models = append(models, payout.Models()...)
	return models
}

func Indexes() []db.PartialIndex {
	return append(reward.Indexes(), payout.Indexes()...)
}

func Run(cfg *config.Config, conn *gorm.DB) error {
	if err := db.AutoMigrate(cfg, conn, Models()...); err != nil {
		return err
	}
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return db.CreatePartialIndexes(conn, Indexes()...)
}
