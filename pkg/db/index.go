package db

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartialIndex is a unique index over the rows matching Where.
type PartialIndex struct {
	Name    string
	Table   string
	Columns []string
	Where   string
}

func (i PartialIndex) sql() string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
		i.Name, i.Table, strings.Join(i.Columns, ", "), i.Where)
}

// CreatePartialIndexes creates the indexes on postgres and sqlite. MySQL has
// no partial indexes; there the services' own checks are the only guard.
func CreatePartialIndexes(conn *gorm.DB, indexes ...PartialIndex) error {
	if conn.Dialector.Name() == "mysql" {
		zap.L().Warn("[DB] partial indexes are not supported on mysql, skipping", zap.Int("indexes", len(indexes)))
		return nil
	}

	for _, idx := range indexes {
		if err := conn.Exec(idx.sql()).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	return nil
}
