package testutil

import (
	"fmt"
	"strings"
	"testing"

	"creatorpay/pkg/db"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB creates an in-memory SQLite database for testing purposes.
// It auto-migrates the provided models and ensures the underlying connection
// is closed when the test finishes.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("failed to migrate test database: %v", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB from gorm: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return conn
}

// CreateIndexes adds the partial unique indexes that struct tags cannot express.
func CreateIndexes(t *testing.T, conn *gorm.DB, indexes ...db.PartialIndex) {
	t.Helper()

	if err := db.CreatePartialIndexes(conn, indexes...); err != nil {
		t.Fatalf("failed to create test indexes: %v", err)
	}
}

// NewMySQLDryRun returns a MySQL session that only renders statements, for
// checking the SQL a query builds without a server.
func NewMySQLDryRun(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "creatorpay:creatorpay@tcp(127.0.0.1:3306)/creatorpay?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("failed to open mysql dry run: %v", err)
	}
	return conn
}
