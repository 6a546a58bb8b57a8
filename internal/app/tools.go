package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/wagerbook/internal/blob/s3"
	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/oracle"
)

// Fund opens account for owner when needed and credits amount base units of
// the default asset. It is an operator tool for the postgres and memory
// custody backends; an external custody service is funded on its own side.
func (a *App) Fund(ctx context.Context, account, owner string, amount uint64) (domain.Account, error) {
	account, owner = strings.TrimSpace(account), strings.TrimSpace(owner)
	if account == "" {
		return domain.Account{}, errors.New("app: fund: account is required")
	}
	if owner == "" {
		owner = account
	}
	if amount == 0 {
		return domain.Account{}, fmt.Errorf("app: fund: %w", domain.ErrInvalidAmount)
	}

	deps, err := a.wire(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	if deps.Funder == nil {
		return domain.Account{}, fmt.Errorf("app: fund: custody backend %q does not accept deposits", a.cfg.Custody.Backend)
	}

	if _, err := deps.Funder.OpenAccount(ctx, account, owner, a.cfg.Settlement.DefaultAsset); err != nil {
		return domain.Account{}, fmt.Errorf("app: fund: open %s: %w", account, err)
	}
	if err := deps.Funder.Deposit(ctx, account, amount); err != nil {
		return domain.Account{}, fmt.Errorf("app: fund: deposit %s: %w", account, err)
	}
	acct, err := deps.Custody.Account(ctx, account)
	if err != nil {
		return domain.Account{}, fmt.Errorf("app: fund: read %s: %w", account, err)
	}

	if err := deps.Audit.Log(ctx, "custody.deposit", map[string]any{
		"account": account,
		"owner":   owner,
		"amount":  amount,
		"balance": acct.Balance,
	}); err != nil {
		a.logger.WarnContext(ctx, "audit log write failed", slog.String("error", err.Error()))
	}
	a.logger.InfoContext(ctx, "account funded",
		slog.String("account", account),
		slog.Uint64("amount", amount),
		slog.Uint64("balance", acct.Balance),
	)
	return acct, nil
}

// SignReading signs a result reading with the configured oracle key. at
// defaults to now.
func (a *App) SignReading(feedID, value string, at time.Time) (domain.OracleReading, error) {
	src := crypto.KeySource{
		RawPrivateKey:    a.cfg.Keys.OraclePrivateKey,
		EncryptedKeyPath: a.cfg.Keys.OracleKeyFile,
		KeyPassword:      a.cfg.Keys.KeyPassword,
	}
	if !src.Configured() {
		return domain.OracleReading{}, errors.New("app: sign reading: no oracle key configured (keys.oracle_private_key or keys.oracle_key_file)")
	}
	signer, err := crypto.LoadSigner(src, a.cfg.Oracle.ChainID)
	if err != nil {
		return domain.OracleReading{}, fmt.Errorf("app: sign reading: %w", err)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return oracle.Sign(signer, domain.OracleReading{
		FeedID:    strings.TrimSpace(feedID),
		Value:     value,
		Timestamp: at.Truncate(time.Second),
	})
}

// SealOracleKey writes the configured oracle key, or a freshly generated one
// when none is configured, to path encrypted with keys.key_password. It
// returns the signer address to add to oracle.trusted_signers.
func (a *App) SealOracleKey(path string) (string, error) {
	if a.cfg.Keys.KeyPassword == "" {
		return "", errors.New("app: seal key: keys.key_password is required")
	}
	var (
		signer *crypto.Signer
		err    error
	)
	if a.cfg.Keys.OraclePrivateKey != "" {
		signer, err = crypto.NewSigner(a.cfg.Keys.OraclePrivateKey, a.cfg.Oracle.ChainID)
	} else {
		signer, err = crypto.GenerateSigner(a.cfg.Oracle.ChainID)
	}
	if err != nil {
		return "", fmt.Errorf("app: seal key: %w", err)
	}
	sealed, err := crypto.SealKey(signer.PrivateKeyHex(), a.cfg.Keys.KeyPassword, signer.Address().Hex())
	if err != nil {
		return "", fmt.Errorf("app: seal key: %w", err)
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return "", fmt.Errorf("app: seal key: %w", err)
	}
	return signer.Address().Hex(), nil
}

// InspectArchive loads a market archive from object storage.
func (a *App) InspectArchive(ctx context.Context, path string) (domain.Market, []domain.Position, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return domain.Market{}, nil, err
	}
	if deps.BlobReader == nil {
		return domain.Market{}, nil, errors.New("app: inspect archive: s3 is not enabled")
	}
	return s3blob.ReadMarket(ctx, deps.BlobReader, path)
}
