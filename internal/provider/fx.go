package provider

import (
	"github.com/bwmarrin/snowflake"
	"github.com/voyatra/hybridpay/internal/clock"
	"github.com/voyatra/hybridpay/internal/config"
	"github.com/voyatra/hybridpay/internal/provider/adapters"
	"github.com/voyatra/hybridpay/internal/provider/adapters/crypto"
	"github.com/voyatra/hybridpay/internal/provider/adapters/traditional"
	"github.com/voyatra/hybridpay/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires both payment rails behind the common registry.
var Module = fx.Module("payment.providers",
	fx.Provide(NewTraditional),
	fx.Provide(NewCrypto),
	fx.Provide(NewRegistry),
)

func NewTraditional(cfg config.Config, log *zap.Logger) *traditional.Adapter {
	authority := traditional.NewHTTPAuthority(cfg.BillingBaseURL, cfg.ProviderTimeout)
	return traditional.New(authority, cfg.UserID, log)
}

func NewCrypto(cfg config.Config, log *zap.Logger, clk clock.Clock, genID *snowflake.Node, backend *validation.Client) *crypto.Adapter {
	onramp := crypto.NewHTTPOnRamp(cfg.OnRampBaseURL, cfg.OnRampAPIKey, cfg.ProviderTimeout)
	return crypto.New(onramp, backend, clk, genID, crypto.Config{
		WalletAddress: cfg.WalletAddress,
		Network:       cfg.CryptoNetwork,
		Currency:      cfg.CryptoCurrency,
		PollInterval:  cfg.SettlementPollInterval,
	}, log)
}

func NewRegistry(t *traditional.Adapter, c *crypto.Adapter) *adapters.Registry {
	return adapters.NewRegistry(t, c)
}
