package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultsim/vaultd/internal/addrgen"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/libs/apikey"
)

const (
	demoKeyPrefix  = "demo0001"
	demoKeySecret  = "demosecret0001"
	otherKeyPrefix = "other0001"
	otherKeySecret = "othersecret0001"
)

var (
	demoWorkspaceID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	otherWorkspaceID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

	demoVaultID  = uuid.MustParse("00000000-0000-0000-0000-000000000101")
	otherVaultID = uuid.MustParse("00000000-0000-0000-0000-000000000102")
)

func main() {
	env := getEnv("VAULTD_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: VAULTD_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "vaultd")
	user := getEnv("POSTGRES_USER", "vaultd")
	password := getEnv("POSTGRES_PASSWORD", "vaultd")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	if err := seedAssets(ctx, pool); err != nil {
		log.Fatalf("seed assets: %v", err)
	}
	fmt.Println("✓ Assets seeded")

	if err := seedWorkspaces(ctx, pool); err != nil {
		log.Fatalf("seed workspaces: %v", err)
	}
	fmt.Println("✓ Workspaces seeded")

	apiKeys, err := seedAPIKeys(ctx, pool, env)
	if err != nil {
		log.Fatalf("seed api keys: %v", err)
	}
	fmt.Println("✓ API keys seeded")

	if err := seedVaults(ctx, pool); err != nil {
		log.Fatalf("seed vault accounts: %v", err)
	}
	fmt.Println("✓ Vault accounts seeded")

	if err := seedWallets(ctx, pool); err != nil {
		log.Fatalf("seed wallets: %v", err)
	}
	fmt.Println("✓ Wallets seeded")

	if err := seedSettings(ctx, pool); err != nil {
		log.Fatalf("seed settings: %v", err)
	}
	fmt.Println("✓ Settings seeded")

	fmt.Println("\n=== Seed Complete ===")
	if env == "dev" {
		fmt.Println("\nAPI Keys (DEV ONLY):")
		for name, key := range apiKeys {
			fmt.Printf("  %s: %s\n", name, key)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func seedAssets(ctx context.Context, pool *pgxpool.Pool) error {
	assets := []struct {
		id              string
		name            string
		decimals        int
		style           addrgen.Style
		contractAddress string
		nativeAssetID   string
		baseFee         string
		feeAssetID      string
	}{
		{"BTC", "Bitcoin", 8, addrgen.AddressBased, "", "", "0.0001", ""},
		{"ETH", "Ethereum", 18, addrgen.AccountBased, "", "", "0.002", ""},
		{"USDT", "Tether USD", 6, addrgen.AccountBased, "0xdac17f958d2ee523a2206206994597c13d831ec7", "ETH", "0.002", "ETH"},
		{"XRP", "XRP Ledger", 6, addrgen.MemoBased, "", "", "0.00001", ""},
	}

	now := time.Now().UTC()
	for _, a := range assets {
		_, err := pool.Exec(ctx, `
			INSERT INTO assets (id, name, symbol, decimals, addressing_style, contract_address, native_asset_id, base_fee, fee_asset_id, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $10)
			ON CONFLICT (id) DO UPDATE
			SET base_fee = EXCLUDED.base_fee,
			    active = TRUE,
			    updated_at = EXCLUDED.updated_at
		`, a.id, a.name, a.id, a.decimals, string(a.style), a.contractAddress, a.nativeAssetID, a.baseFee, a.feeAssetID, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedWorkspaces(ctx context.Context, pool *pgxpool.Pool) error {
	workspaces := []struct {
		id   uuid.UUID
		name string
	}{
		{demoWorkspaceID, "demo"},
		{otherWorkspaceID, "counterparty"},
	}

	for _, ws := range workspaces {
		_, err := pool.Exec(ctx, `
			INSERT INTO workspaces (id, name, created_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, ws.id, ws.name, time.Now().UTC())
		if err != nil {
			return err
		}
	}
	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, env string) (map[string]string, error) {
	keys := []struct {
		id          uuid.UUID
		workspaceID uuid.UUID
		name        string
		prefix      string
		secret      string
	}{
		{uuid.MustParse("00000000-0000-0000-0000-000000000201"), demoWorkspaceID, "demo", demoKeyPrefix, demoKeySecret},
		{uuid.MustParse("00000000-0000-0000-0000-000000000202"), otherWorkspaceID, "counterparty", otherKeyPrefix, otherKeySecret},
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		fullKey := fmt.Sprintf("vk_%s_%s.%s", env, k.prefix, k.secret)
		_, err := pool.Exec(ctx, `
			INSERT INTO api_keys (id, workspace_id, prefix, key_hash, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (prefix) DO UPDATE
			SET workspace_id = EXCLUDED.workspace_id,
			    key_hash = EXCLUDED.key_hash,
			    revoked_at = NULL
		`, k.id, k.workspaceID, k.prefix, apikey.Hash(k.prefix, k.secret), time.Now().UTC())
		if err != nil {
			return nil, err
		}
		out[k.name] = fullKey
	}
	return out, nil
}

func seedVaults(ctx context.Context, pool *pgxpool.Pool) error {
	vaults := []struct {
		id          uuid.UUID
		workspaceID uuid.UUID
		name        string
	}{
		{demoVaultID, demoWorkspaceID, "Treasury"},
		{otherVaultID, otherWorkspaceID, "Operations"},
	}

	now := time.Now().UTC()
	for _, v := range vaults {
		_, err := pool.Exec(ctx, `
			INSERT INTO vault_accounts (id, workspace_id, name, customer_ref_id, auto_fuel, hidden, created_at, updated_at)
			VALUES ($1, $2, $3, '', FALSE, FALSE, $4, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, v.id, v.workspaceID, v.name, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedWallets(ctx context.Context, pool *pgxpool.Pool) error {
	balances := map[string]string{
		"BTC":  "10",
		"ETH":  "100",
		"USDT": "50000",
		"XRP":  "25000",
	}
	styles := map[string]addrgen.Style{
		"BTC":  addrgen.AddressBased,
		"ETH":  addrgen.AccountBased,
		"USDT": addrgen.AccountBased,
		"XRP":  addrgen.MemoBased,
	}

	now := time.Now().UTC()
	for _, vaultID := range []uuid.UUID{demoVaultID, otherVaultID} {
		for assetID, balance := range balances {
			var walletID uuid.UUID
			err := pool.QueryRow(ctx, `
				SELECT id FROM wallets WHERE vault_account_id = $1 AND asset_id = $2 ORDER BY created_at ASC LIMIT 1
			`, vaultID, assetID).Scan(&walletID)
			if err != nil {
				walletID = uuid.New()
				if _, err := pool.Exec(ctx, `
					INSERT INTO wallets (id, vault_account_id, asset_id, balance, pending, locked, staked, block_height, block_hash, created_at, updated_at)
					VALUES ($1, $2, $3, $4, 0, 0, 0, 0, '', $5, $5)
				`, walletID, vaultID, assetID, balance, now); err != nil {
					return err
				}
			} else {
				if _, err := pool.Exec(ctx, `
					UPDATE wallets SET balance = $1, pending = 0, locked = 0, updated_at = $2 WHERE id = $3
				`, balance, now, walletID); err != nil {
					return err
				}
			}

			if err := ensureAddress(ctx, pool, walletID, styles[assetID]); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureAddress(ctx context.Context, pool *pgxpool.Pool, walletID uuid.UUID, style addrgen.Style) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE wallet_id = $1`, walletID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	address, err := addrgen.NewAddress(style)
	if err != nil {
		return err
	}
	tag := ""
	if style == addrgen.MemoBased {
		if tag, err = addrgen.NewMemo(); err != nil {
			return err
		}
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO addresses (id, wallet_id, address, tag, format, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), walletID, address, tag, string(style), time.Now().UTC())
	return err
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO settings (name, value, updated_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (name) DO UPDATE SET value = TRUE, updated_at = EXCLUDED.updated_at
	`, storage.SettingAutoAdvance, time.Now().UTC())
	return err
}
