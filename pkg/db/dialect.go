package db

import (
	"fmt"

	"creatorpay/pkg/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm dialector from DATABASE.TYPE.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch d.Type {
	case "", "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			d.Host, d.User, d.Password, d.DBNAME, d.Port, d.SSLMode, d.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(d.DBNAME), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", d.Type)
	}
}
