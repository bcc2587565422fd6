package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil {
		t.Fatalf("expected non-nil DB when context provided")
	}
	if withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestTransactionCommitsAndRollsBack(t *testing.T) {
	type row struct {
		ID   int `gorm:"primaryKey"`
		Name string
	}

	db := newTestDB(t)
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	base := NewBase(db)
	ctx := context.Background()

	if err := base.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row{ID: 1, Name: "kept"}).Error
	}); err != nil {
		t.Fatalf("commit transaction: %v", err)
	}

	wantErr := context.Canceled
	if err := base.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&row{ID: 2, Name: "dropped"}).Error; err != nil {
			return err
		}
		return wantErr
	}); err != wantErr {
		t.Fatalf("expected fn error back, got %v", err)
	}

	var count int64
	if err := db.Model(&row{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to drop the second row, count=%d", count)
	}
}
