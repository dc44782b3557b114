package database

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

var DB *gorm.DB

// Initialize opens the database at dbPath, migrates it and stores it as the global handle.
func Initialize(dbPath string) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects to a SQLite database and brings its schema up to date.
// ":memory:" yields a private in-memory database pinned to one connection.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Println("Database connected successfully")

	// Fix up legacy columns and duplicates before constraints are added
	if err := renameLegacyCmvColumn(db); err != nil {
		return nil, err
	}
	if err := cleanupDuplicateCatalogRows(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.CollectionItem{},
		&models.CardImage{},
		&models.CatalogRow{},
		&models.WatchlistItem{},
		&models.SearchLog{},
		&models.PortfolioSnapshot{},
	)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
