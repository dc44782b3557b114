package database

import (
	"log"

	"gorm.io/gorm"
)

// renameLegacyCmvColumn moves the old est_cmv column to estimated_cmv.
// This runs BEFORE AutoMigrate so the value is not orphaned in a dead column.
func renameLegacyCmvColumn(db *gorm.DB) error {
	if !db.Migrator().HasTable("collection_items") {
		return nil
	}
	if !db.Migrator().HasColumn("collection_items", "est_cmv") {
		return nil
	}

	if !db.Migrator().HasColumn("collection_items", "estimated_cmv") {
		log.Println("Migrating collection_items: est_cmv -> estimated_cmv")
		return db.Migrator().RenameColumn("collection_items", "est_cmv", "estimated_cmv")
	}

	// Both exist: keep the newer column, backfill from the old one where empty
	result := db.Exec(`UPDATE collection_items SET estimated_cmv = est_cmv WHERE estimated_cmv IS NULL AND est_cmv IS NOT NULL`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Backfilled estimated_cmv for %d collection_items rows", result.RowsAffected)
	}
	return db.Migrator().DropColumn("collection_items", "est_cmv")
}

// cleanupDuplicateCatalogRows removes duplicate catalog_rows by URL before the unique index is added
func cleanupDuplicateCatalogRows(db *gorm.DB) error {
	if !db.Migrator().HasTable("catalog_rows") {
		return nil
	}

	// Keep the most recently inserted row per URL
	result := db.Exec(`
		DELETE FROM catalog_rows
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM catalog_rows
			GROUP BY url
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d duplicate catalog_rows entries", result.RowsAffected)
	}
	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	return reconcileCmvStatus(db)
}

// reconcileCmvStatus repairs rows whose status contradicts the stored value.
// Rows without a status are left alone: their UI state is derived from created_at.
func reconcileCmvStatus(db *gorm.DB) error {
	result := db.Exec(`UPDATE collection_items SET cmv_status = 'unavailable' WHERE cmv_status = 'ready' AND estimated_cmv IS NULL`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Marked %d ready collection_items without a value as unavailable", result.RowsAffected)
	}

	result = db.Exec(`UPDATE collection_items SET cmv_status = 'ready' WHERE cmv_status = 'unavailable' AND estimated_cmv IS NOT NULL`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Marked %d unavailable collection_items with a value as ready", result.RowsAffected)
	}
	return nil
}
