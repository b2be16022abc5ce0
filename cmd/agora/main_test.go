package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoradao/agora/pkg/config"
	"github.com/agoradao/agora/pkg/domain"
)

const adminHex = "0x0000000000000000000000000000000000000a01"

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuorumCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"quorum", "1000", "10000"}, "ratio_bps=1000 quorum_bps=600\n"},
		{[]string{"quorum", "1", "3"}, "ratio_bps=3333 quorum_bps=1166\n"},
		{[]string{"quorum", "6000", "10000"}, "ratio_bps=6000 quorum_bps=3000\n"},
		{[]string{"quorum", "5", "0"}, "quorum_bps=500\n"},
		{[]string{"quorum", "2000", "10000", "--base", "700"}, "ratio_bps=2000 quorum_bps=900\n"},
	}
	for _, tt := range tests {
		out, err := runCommand(t, tt.args...)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, out, tt.args)
	}

	_, err := runCommand(t, "quorum", "ten", "100")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = runCommand(t, "quorum", "1", "100", "--base", "4000")
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)

	_, err = runCommand(t, "quorum", "1")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agora.db")

	out, err := runCommand(t, "migrate", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "applied ")

	out, err = runCommand(t, "migrate", "--path", path)
	require.NoError(t, err)
	assert.Equal(t, "schema is up to date\n", out)

	t.Setenv("AGORA_ADMIN", adminHex)
	_, err = runCommand(t, "migrate")
	assert.ErrorContains(t, err, "migrations only apply")
}

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Roles.Admin = adminHex
	cfg.Roles.BoardMembers = []string{"0x0000000000000000000000000000000000000b01"}
	cfg.Storage.Driver = driver
	if driver == config.DriverSQLite {
		cfg.Storage.Path = filepath.Join(t.TempDir(), "agora.db")
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildApp_ReopensDurableStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t, config.DriverSQLite)
	donor := common.HexToAddress("0x0000000000000000000000000000000000000d01")

	a, err := buildApp(ctx, cfg, logger)
	require.NoError(t, err)
	receipt, err := a.treasury.Deposit(ctx, donor, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(20), receipt.Weight.Int64())
	require.NoError(t, a.Close())

	a, err = buildApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	balance, err := a.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Int64())
	weight, err := a.ledger.BalanceOf(ctx, donor)
	require.NoError(t, err)
	assert.Equal(t, int64(20), weight.Int64())

	board, err := a.engine.BoardMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{cfg.Roles.BoardAddresses()[0]}, board)

	bindings := 0
	evs, err := a.engine.Events(ctx, 0, 0)
	require.NoError(t, err)
	for _, ev := range evs {
		if ev.Kind == domain.EventBindingSet {
			bindings++
		}
	}
	assert.Equal(t, 3, bindings)
}

func TestBuildApp_RejectsRebinding(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t, config.DriverSQLite)

	a, err := buildApp(ctx, cfg, logger)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg.Identities.Governance = "0x0000000000000000000000000000000000007e09"
	_, err = buildApp(ctx, cfg, logger)
	assert.ErrorIs(t, err, domain.ErrAlreadyBound)
}

func TestNewHTTPServer(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t, config.DriverMemory)

	a, err := buildApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	server, err := newHTTPServer(cfg.Server, a)
	require.NoError(t, err)
	assert.Nil(t, server.TLSConfig)
	assert.Equal(t, ":8080", server.Addr)

	cfg.Server.TLS = &config.TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"}
	_, err = newHTTPServer(cfg.Server, a)
	assert.Error(t, err)
}
