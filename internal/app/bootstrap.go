// Package app wires configuration, storage, collaborators and the vault
// into a running process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/holiman/uint256"

	"vault_go/backtest"
	"vault_go/internal/domain"
	"vault_go/internal/engine"
	"vault_go/internal/infra"
	"vault_go/internal/storage"
	"vault_go/pkg/fixed"
)

// Bootstrap orchestrates the startup sequence: config, logger, journal,
// collaborators, vault, recovery replay, genesis.
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.OpStore
	Vault  *engine.Vault
	Book   *infra.PriceBook
	Bank   *infra.Bank
	Roles  *infra.RoleStore

	feed *infra.FeedWorker
}

func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds the whole system. When the journal already holds
// operations they are replayed; otherwise the configured token whitelist is
// applied as the genesis operations.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("bootstrapping", "app", cfg.App.Name, "version", cfg.App.Version)

	dbPath := cfg.Storage.DBPath
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := infra.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	store, err := storage.NewOpStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("journal opened (WAL mode)", "path", dbPath)

	b.Book = infra.NewPriceBook()
	b.Bank = infra.NewBank(domain.AssetID(cfg.Vault.SyntheticAsset))
	b.Roles = infra.NewRoleStore()
	b.Roles.Grant(domain.AccountID(cfg.Vault.Authority), domain.RoleAuthority)

	vcfg, err := cfg.VaultConfig()
	if err != nil {
		return err
	}
	vault, err := engine.New(vcfg, b.Book, b.Bank, b.Roles, store)
	if err != nil {
		return err
	}
	b.Vault = vault

	lastSeq, err := store.GetLastSeq(ctx)
	if err != nil {
		return err
	}
	if lastSeq > 0 {
		replayed, err := backtest.NewReplayer(store).Run(ctx, vault, 1)
		if err != nil {
			return fmt.Errorf("recovery replay: %w", err)
		}
		slog.Info("state recovered", "ops", replayed, "last_seq", lastSeq)
		return nil
	}
	return b.applyGenesis(ctx)
}

// applyGenesis lists the configured tokens through ordinary admin
// operations so the whitelist itself is journaled and replayable.
func (b *Bootstrap) applyGenesis(ctx context.Context) error {
	authority := domain.AccountID(b.Config.Vault.Authority)
	now := uint64(time.Now().Unix())

	for _, t := range b.Config.Tokens {
		issuanceCap := new(uint256.Int)
		if t.MaxSyntheticIssuance != "" {
			parsed, err := fixed.ParseDecimal(t.MaxSyntheticIssuance, fixed.SyntheticDecimals)
			if err != nil {
				return fmt.Errorf("token %s issuance cap: %w", t.Asset, err)
			}
			issuanceCap = parsed
		}
		op := &engine.SetTokenConfigOp{
			OpBase:               engine.OpBase{Time: now, Sender: authority},
			Asset:                domain.AssetID(t.Asset),
			Decimals:             t.Decimals,
			Weight:               t.Weight,
			MinProfitBps:         t.MinProfitBps,
			MaxSyntheticIssuance: issuanceCap,
			IsStable:             t.IsStable,
			IsShortable:          t.IsShortable,
		}
		if _, err := b.Vault.Execute(ctx, op); err != nil {
			return fmt.Errorf("genesis listing %s: %w", t.Asset, err)
		}
	}
	slog.Info("genesis applied", "tokens", len(b.Config.Tokens))
	return nil
}

// StartFeed launches the price feed worker when one is configured.
func (b *Bootstrap) StartFeed(ctx context.Context) {
	if b.Config.Feed.WSURL == "" {
		slog.Info("no price feed configured, oracle stays static")
		return
	}
	symbols := make(map[string]domain.AssetID)
	for _, t := range b.Config.Tokens {
		if t.FeedSymbol != "" {
			symbols[t.FeedSymbol] = domain.AssetID(t.Asset)
		}
	}
	b.feed = infra.NewFeedWorker(b.Config.Feed.WSURL, symbols, b.Book)
	if b.Config.Feed.PingIntervalSec > 0 {
		b.feed.PingInterval = time.Duration(b.Config.Feed.PingIntervalSec) * time.Second
	}
	b.feed.Start(ctx)
	slog.Info("price feed started", "url", b.Config.Feed.WSURL, "symbols", len(symbols))
}

// Shutdown stops background workers and closes the journal.
func (b *Bootstrap) Shutdown() {
	if b.feed != nil {
		b.feed.Stop()
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("journal close failed", "err", err)
		}
	}
}
