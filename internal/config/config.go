package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds every tunable the rental engine needs. Loaded once at startup
// and passed around as an immutable value.
type Config struct {
	// Payment gateway
	GatewayBaseURL    string
	GatewayAPIKey     string
	GatewayHMACSecret string
	IntegrationCard   string
	IntegrationMoto   string
	IntegrationWallet string
	IframeID          string
	GatewayTimeout    time.Duration

	// Pricing
	DepositPct     decimal.Decimal // share of cost collected up-front
	ServiceFeePct  decimal.Decimal // self-drive service fee on base cost
	BufferPct      decimal.Decimal // electronic-payment surcharge, with-driver
	CommissionRate decimal.Decimal
	LateFeeMult    decimal.Decimal

	// Lifecycle
	DepositTTL  time.Duration
	WalletFloor decimal.Decimal
}

// Load reads the configuration from the environment. Missing gateway
// credentials are an error; pricing knobs fall back to the platform defaults.
func Load() (*Config, error) {
	cfg := &Config{
		GatewayBaseURL:    os.Getenv("GATEWAY_BASE_URL"),
		GatewayAPIKey:     os.Getenv("GATEWAY_API_KEY"),
		GatewayHMACSecret: os.Getenv("GATEWAY_HMAC_SECRET"),
		IntegrationCard:   os.Getenv("INTEGRATION_ID_CARD"),
		IntegrationMoto:   os.Getenv("INTEGRATION_ID_MOTO"),
		IntegrationWallet: os.Getenv("INTEGRATION_ID_WALLET"),
		IframeID:          os.Getenv("IFRAME_ID"),
		GatewayTimeout:    envDuration("GATEWAY_TIMEOUT", 15*time.Second),

		DepositPct:     envDecimal("DEPOSIT_PCT", "0.15"),
		ServiceFeePct:  envDecimal("SERVICE_FEE_PCT", "0.15"),
		BufferPct:      envDecimal("BUFFER_PCT", "0.25"),
		CommissionRate: envDecimal("COMMISSION_RATE", "0.20"),
		LateFeeMult:    envDecimal("LATE_FEE_MULT", "1.30"),

		DepositTTL:  envDuration("DEPOSIT_TTL", 24*time.Hour),
		WalletFloor: envDecimal("WALLET_FLOOR", "-1000"),
	}

	if cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayAPIKey == "" {
		return nil, fmt.Errorf("GATEWAY_API_KEY is required")
	}
	if cfg.GatewayHMACSecret == "" {
		return nil, fmt.Errorf("GATEWAY_HMAC_SECRET is required")
	}

	return cfg, nil
}

func envDecimal(key, fallback string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d = decimal.RequireFromString(fallback)
	}
	return d
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain number of hours, e.g. DEPOSIT_TTL=24
	if h, err := strconv.Atoi(v); err == nil {
		return time.Duration(h) * time.Hour
	}
	return fallback
}
