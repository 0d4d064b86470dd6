package main

import (
	"flag"
	"fmt"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"
	"github.com/convtrack/internal/service"
)

func main() {
	var (
		advertiserID uint
		offerID      uint
		endpoint     string
	)
	flag.UintVar(&advertiserID, "advertiser", 1, "演示广告主ID")
	flag.UintVar(&offerID, "offer", 100, "演示报价ID")
	flag.StringVar(&endpoint, "endpoint", "https://partner.example.com/postback?cid={click_id}&status={status}&payout={revenue}", "演示回传地址模板")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	db, err := models.OpenDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false)
	if err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(db); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 推广链接
	clickRepo := repository.NewClickRepository(db)
	code := fmt.Sprintf("demo-%d-%d", advertiserID, offerID)
	link, err := clickRepo.GetLinkByCode(code)
	if err != nil {
		stdLog.Fatalf("Failed to load tracking link: %v", err)
	}
	if link == nil {
		link = &models.TrackingLink{Code: code, AdvertiserID: advertiserID, OfferID: offerID}
		if err := clickRepo.CreateLink(link); err != nil {
			stdLog.Fatalf("Failed to create tracking link: %v", err)
		}
		stdLog.Printf("Created tracking link: %s", code)
	} else {
		stdLog.Printf("Tracking link already exists: %s", code)
	}

	// 回传配置
	owner := repository.PostbackOwnerRef{Scope: constants.PostbackOwnerScopeAdvertiser, ID: advertiserID}
	profiles := service.NewPostbackProfileService(
		repository.NewPostbackProfileRepository(db),
		repository.NewPostbackDeliveryRepository(db),
		cfg.Postback,
	)
	existing, total, err := profiles.List(owner, repository.PostbackProfileListFilter{Page: 1, PageSize: 1, Search: "demo"})
	if err != nil {
		stdLog.Fatalf("Failed to list postback profiles: %v", err)
	}
	if total == 0 {
		profile, err := profiles.Create(owner, service.PostbackProfileInput{
			Name:        "demo",
			Enabled:     true,
			ScopeType:   constants.PostbackScopeGlobal,
			EndpointURL: endpoint,
			StatusMap: models.StatusMap{
				constants.ConversionTypePurchase: {
					constants.ConversionStatusApproved: "sale",
					constants.ConversionStatusRefunded: "refund",
				},
			},
		})
		if err != nil {
			stdLog.Fatalf("Failed to create postback profile: %v", err)
		}
		stdLog.Printf("Created postback profile: %d", profile.ID)
	} else {
		stdLog.Printf("Postback profile already exists: %d", existing[0].ID)
	}

	// 管理接口令牌
	token, expiresAt, err := service.IssueOwnerToken(cfg.JWT.SecretKey, owner, cfg.JWT.ExpireHours)
	if err != nil {
		stdLog.Fatalf("Failed to issue owner token: %v", err)
	}
	fmt.Printf("click url:   /api/v1/track/click?code=%s&sub1=demo\n", code)
	fmt.Printf("owner token: %s\n", token)
	fmt.Printf("expires at:  %s\n", expiresAt.Format("2006-01-02 15:04:05"))
}
