package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:models_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func TestStatusMapLookup(t *testing.T) {
	m := StatusMap{"purchase": {"approved": "sale", "declined": " "}}
	if got, ok := m.Lookup("purchase", "approved"); !ok || got != "sale" {
		t.Fatalf("expected sale, got %q ok=%v", got, ok)
	}
	if _, ok := m.Lookup("purchase", "declined"); ok {
		t.Fatalf("blank mapping should be ignored")
	}
	if _, ok := m.Lookup("reg", "approved"); ok {
		t.Fatalf("missing event type should not match")
	}
}

func TestJSONMergeAccumulates(t *testing.T) {
	base := JSON{"a": "1", "b": "2"}
	merged := base.Merge(map[string]interface{}{"b": "3", "c": "4", " ": "x"})
	if merged["a"] != "1" || merged["b"] != "3" || merged["c"] != "4" {
		t.Fatalf("unexpected merge result: %v", merged)
	}
	if _, ok := merged[" "]; ok {
		t.Fatalf("blank key should be dropped")
	}
	if base["b"] != "2" {
		t.Fatalf("merge should not mutate receiver")
	}
}

func TestMoneyPlainAndJSON(t *testing.T) {
	m, err := NewMoneyFromString("50.0000")
	if err != nil {
		t.Fatalf("parse money failed: %v", err)
	}
	if m.Plain() != "50" {
		t.Fatalf("expected 50, got %s", m.Plain())
	}
	var parsed Money
	if err := parsed.UnmarshalJSON([]byte("12.5")); err != nil {
		t.Fatalf("unmarshal number failed: %v", err)
	}
	if !parsed.Decimal.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected money: %s", parsed.Plain())
	}
	if zero, _ := NewMoneyFromString(""); zero.IsPositive() {
		t.Fatalf("empty money should be zero")
	}
}

func TestProfileJSONColumnsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	profile := &PostbackProfile{
		OwnerScope:           "advertiser",
		OwnerID:              7,
		ScopeType:            "global",
		Name:                 "main",
		Enabled:              true,
		EndpointURL:          "https://example.com/pb?cid={clickid}",
		Method:               "GET",
		StatusMap:            StatusMap{"purchase": {"approved": "sale"}},
		ParamsTemplate:       StringMap{"payout": "{revenue}"},
		FilterCountriesAllow: StringArray{"US", "DE"},
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("create profile failed: %v", err)
	}
	var loaded PostbackProfile
	if err := db.First(&loaded, profile.ID).Error; err != nil {
		t.Fatalf("load profile failed: %v", err)
	}
	if got, _ := loaded.StatusMap.Lookup("purchase", "approved"); got != "sale" {
		t.Fatalf("status map not persisted: %v", loaded.StatusMap)
	}
	if loaded.ParamsTemplate["payout"] != "{revenue}" {
		t.Fatalf("params template not persisted: %v", loaded.ParamsTemplate)
	}
	if !loaded.FilterCountriesAllow.ContainsFold("us") {
		t.Fatalf("allow list not persisted: %v", loaded.FilterCountriesAllow)
	}
}

func TestConversionKeyUnique(t *testing.T) {
	db := openTestDB(t)
	first := &ConversionEvent{AdvertiserID: 1, Type: "purchase", TxID: "tx1", ConversionStatus: "pending"}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("create conversion failed: %v", err)
	}
	dup := &ConversionEvent{AdvertiserID: 1, Type: "purchase", TxID: "tx1", ConversionStatus: "approved"}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate key")
	}
	other := &ConversionEvent{AdvertiserID: 1, Type: "reg", TxID: "tx1", ConversionStatus: "approved"}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("different type should not collide: %v", err)
	}
}
