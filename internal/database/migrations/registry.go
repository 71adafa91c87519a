package migrations

import (
	"gorm.io/gorm"

	"github.com/leduong/EPlusTV/internal/models"
)

// AllMigrations returns all registered migrations in order.
//   - 001: catalog, credential mirror, settings and run history tables
//   - 002: composite index used to resolve the entry covering a channel
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002CoveringIndex(),
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create catalog tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Entry{},
				&models.ProviderState{},
				&models.ScheduleSettings{},
				&models.ScheduleRun{},
			)
		},
		Down: func(tx *gorm.DB) error {
			for _, table := range []string{"schedule_runs", "schedule_settings", "provider_states", "entries"} {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

const coveringIndex = "idx_entries_channel_window"

func migration002CoveringIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Index entries by channel and window",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Entry{}, coveringIndex) {
				return nil
			}
			return tx.Migrator().CreateIndex(&models.Entry{}, coveringIndex)
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.Entry{}, coveringIndex) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.Entry{}, coveringIndex)
		},
	}
}
