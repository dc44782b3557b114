package database

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

func TestOpenMigratesFreshDatabase(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for _, table := range []string{"collection_items", "card_images", "catalog_rows", "watchlist_items", "search_logs", "portfolio_snapshots"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestLegacyCmvColumnIsRenamed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	raw, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		`CREATE TABLE collection_items (id integer primary key autoincrement, user_id text not null, player_name text not null, est_cmv real, created_at datetime)`,
		`INSERT INTO collection_items (user_id, player_name, est_cmv, created_at) VALUES ('u1', 'Mike Trout', 250.5, CURRENT_TIMESTAMP)`,
	}
	for _, s := range stmts {
		if err := raw.Exec(s).Error; err != nil {
			t.Fatal(err)
		}
	}
	sqlDB, _ := raw.DB()
	sqlDB.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if db.Migrator().HasColumn("collection_items", "est_cmv") {
		t.Error("est_cmv column should be gone")
	}

	var item models.CollectionItem
	if err := db.First(&item).Error; err != nil {
		t.Fatal(err)
	}
	if item.EstimatedCmv == nil || *item.EstimatedCmv != 250.5 {
		t.Errorf("EstimatedCmv = %v, want 250.5", item.EstimatedCmv)
	}
	if item.CmvStatus != models.CmvStatusNone {
		t.Errorf("legacy row status = %q, want empty", item.CmvStatus)
	}
}

func TestReconcileCmvStatus(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	value := 40.0
	items := []models.CollectionItem{
		{UserID: "u1", PlayerName: "A", CmvStatus: models.CmvStatusReady},
		{UserID: "u1", PlayerName: "B", CmvStatus: models.CmvStatusUnavailable, EstimatedCmv: &value},
		{UserID: "u1", PlayerName: "C", CmvStatus: models.CmvStatusPending},
	}
	if err := db.Create(&items).Error; err != nil {
		t.Fatal(err)
	}

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	want := map[string]models.CmvStatus{
		"A": models.CmvStatusUnavailable,
		"B": models.CmvStatusReady,
		"C": models.CmvStatusPending,
	}
	var got []models.CollectionItem
	db.Find(&got)
	for _, item := range got {
		if item.CmvStatus != want[item.PlayerName] {
			t.Errorf("%s status = %q, want %q", item.PlayerName, item.CmvStatus, want[item.PlayerName])
		}
	}
}

func TestDuplicateCatalogRowsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupes.db")
	raw, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		`CREATE TABLE catalog_rows (id integer primary key autoincrement, player_name text not null, url text, price real)`,
		`INSERT INTO catalog_rows (player_name, url, price) VALUES ('A', 'https://x/1', 10)`,
		`INSERT INTO catalog_rows (player_name, url, price) VALUES ('A', 'https://x/1', 12)`,
		`INSERT INTO catalog_rows (player_name, url, price) VALUES ('B', 'https://x/2', 20)`,
	}
	for _, s := range stmts {
		if err := raw.Exec(s).Error; err != nil {
			t.Fatal(err)
		}
	}
	sqlDB, _ := raw.DB()
	sqlDB.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	var rows []models.CatalogRow
	db.Order("id").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Price != 12 {
		t.Errorf("kept price = %v, want newest (12)", rows[0].Price)
	}
}
