package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository/postgres"
)

func main() {
	code := flag.String("code", "", "coupon code (required)")
	kind := flag.String("type", "percent", "discount type: percent or fixed")
	value := flag.Float64("value", 0, "discount value: percent points or fixed amount (required)")
	minPurchase := flag.Float64("min-purchase", 0, "minimum subtotal, 0 for none")
	maxDiscount := flag.Float64("max-discount", 0, "discount cap for percent coupons, 0 for none")
	validDays := flag.Int("valid-days", 30, "days the coupon stays valid from now")
	usageLimit := flag.Int("usage-limit", 0, "total redemptions allowed, 0 for unlimited")
	perUserLimit := flag.Int("per-user-limit", 0, "redemptions allowed per user, 0 for unlimited")
	flag.Parse()

	if *code == "" || *value <= 0 {
		fmt.Println("Usage: go run cmd/create-coupon/main.go -code SAVE10 -type percent -value 10 [flags]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	couponType := domain.CouponType(strings.ToUpper(*kind))
	if couponType != domain.CouponTypePercent && couponType != domain.CouponTypeFixed {
		fmt.Fprintf(os.Stderr, "Invalid coupon type %q, want percent or fixed\n", *kind)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	now := time.Now()
	coupon := &domain.Coupon{
		Code:      strings.ToUpper(*code),
		Type:      couponType,
		Value:     *value,
		ValidFrom: now,
		ValidTo:   now.AddDate(0, 0, *validDays),
		IsActive:  true,
	}
	if *minPurchase > 0 {
		coupon.MinPurchase = minPurchase
	}
	if *maxDiscount > 0 {
		coupon.MaxDiscount = maxDiscount
	}
	if *usageLimit > 0 {
		coupon.UsageLimit = usageLimit
	}
	if *perUserLimit > 0 {
		coupon.PerUserLimit = perUserLimit
	}

	if err := repos.Coupon.Create(context.Background(), coupon); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create coupon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Coupon created successfully!\n\n")
	fmt.Printf("Coupon ID: %s\n", coupon.ID.String())
	fmt.Printf("Code: %s\n", coupon.Code)
	fmt.Printf("Type: %s, Value: %.2f\n", coupon.Type, coupon.Value)
	fmt.Printf("Valid until: %s\n", coupon.ValidTo.Format(time.RFC3339))
}
