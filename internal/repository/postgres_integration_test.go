//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	for _, model := range models.AllModels() {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			t.Fatalf("cleanup table failed: %v", err)
		}
	}
	return db
}

func TestPostgresConversionUpsertConflict(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewConversionRepository(db)

	first := &models.ConversionEvent{AdvertiserID: 1, Type: constants.ConversionTypePurchase, TxID: "pg-tx", ConversionStatus: constants.ConversionStatusPending}
	if err := repo.Upsert(first); err != nil {
		t.Fatalf("insert conversion failed: %v", err)
	}
	dup := &models.ConversionEvent{AdvertiserID: 1, Type: constants.ConversionTypePurchase, TxID: "pg-tx", ConversionStatus: constants.ConversionStatusApproved}
	if err := repo.Upsert(dup); err != ErrConversionKeyConflict {
		t.Fatalf("expected key conflict, got %v", err)
	}
}

func TestPostgresMatchEnabledSearchILike(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPostbackProfileRepository(db)
	profile := &models.PostbackProfile{
		OwnerScope:  constants.PostbackOwnerScopeAdvertiser,
		OwnerID:     9,
		ScopeType:   constants.PostbackScopeGlobal,
		Name:        "Keitaro Main",
		Enabled:     true,
		EndpointURL: "https://tracker.example.com/postback",
		Method:      constants.PostbackMethodGet,
	}
	if err := repo.Create(profile); err != nil {
		t.Fatalf("create profile failed: %v", err)
	}
	rows, total, err := repo.List(PostbackProfileListFilter{Search: "keitaro"})
	if err != nil {
		t.Fatalf("list profiles failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected case-insensitive match, got total=%d", total)
	}
}
