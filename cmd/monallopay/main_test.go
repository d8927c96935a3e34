package main

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"monallopay/internal/assets"
	"monallopay/internal/balance"
	"monallopay/internal/config"
	"monallopay/internal/i18n"
	"monallopay/internal/models"
	"monallopay/internal/transfer"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHex    = "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5"
	testBech32 = "imua1j53z9yxawfu250wa8zwvrcw3vhxyhtl9l9v8zy"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAddressEncodeDecode(t *testing.T) {
	out, err := execute("address", "encode", "--hrp", "imua", testHex)
	require.NoError(t, err)
	assert.Equal(t, testBech32, strings.TrimSpace(out))

	out, err = execute("address", "decode", "--hrp", "imua", testBech32)
	require.NoError(t, err)
	assert.Equal(t, testHex, strings.TrimSpace(out))

	out, err = execute("address", "decode", "--hrp", "lat", "lat1j53z9yxawfu250wa8zwvrcw3vhxyhtl9lj434n")
	require.NoError(t, err)
	assert.Equal(t, testHex, strings.TrimSpace(out))
}

func TestAddressDecodeWrongPrefix(t *testing.T) {
	_, err := execute("address", "decode", "--hrp", "lat", testBech32)
	assert.Error(t, err)
}

func TestAddressValidate(t *testing.T) {
	out, err := execute("address", "validate", "--hrp", "imua", "--lang", "en", strings.Repeat("a", 64))
	require.NoError(t, err)
	assert.Contains(t, out, "recipient: Invalid address format")
	assert.Contains(t, out, "contact: true")

	out, err = execute("address", "validate", "--hrp", "imua", testBech32)
	require.NoError(t, err)
	assert.Contains(t, out, "recipient: ok "+testHex)
	assert.Contains(t, out, "contact: false")
}

func TestPrintNotifier(t *testing.T) {
	tr, err := i18n.New()
	require.NoError(t, err)

	var buf bytes.Buffer
	n := &printNotifier{out: &buf, tr: tr, lang: i18n.Chinese}
	n.Notify(transfer.Notice{MessageID: transfer.NoticeComingSoon, Asset: models.MaoEURC})
	assert.Equal(t, "maoEURC正在接入中，敬请期待！\n", buf.String())
}

func TestPrintBalances(t *testing.T) {
	var buf bytes.Buffer
	printBalances(&buf, map[models.Asset]string{models.MaoUSDT: "2.5", models.IMUA: "1"})
	assert.Equal(t, "IMUA     1\nmaoUSDT  2.5\n", buf.String())
}

type stubChain struct {
	reads int32
}

func (s *stubChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	atomic.AddInt32(&s.reads, 1)
	return big.NewInt(2_000_000_000_000_000_000), nil
}

func (s *stubChain) TokenDecimals(context.Context, common.Address) (uint8, error) {
	return 6, nil
}

func (s *stubChain) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(1_500_000), nil
}

func TestWatchBalancesStopsOnCancel(t *testing.T) {
	registry, err := assets.NewRegistry(map[models.Asset]config.AssetConfig{
		models.MaoUSDT: {Contract: "0xfa4b837d43f2519279fdcc14529d2fa0a2366c4c"},
	})
	require.NoError(t, err)

	chain := &stubChain{}
	logger := zerolog.Nop()
	poller := balance.NewPoller(chain, registry, 5*time.Millisecond, &logger)
	poller.SetAccount(testHex)

	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- watchBalances(ctx, poller, &buf) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&chain.reads) >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch loop did not stop after cancel")
	}

	out := buf.String()
	assert.GreaterOrEqual(t, strings.Count(out, "IMUA     2\n"), 2)
	assert.Contains(t, out, "maoUSDT  1.5\n")
}

func TestPrintTransferError(t *testing.T) {
	tr, err := i18n.New()
	require.NoError(t, err)
	a := &app{translator: tr, lang: i18n.English}

	var buf bytes.Buffer
	a.printTransferError(&buf, fmt.Errorf("%w: dial tcp: timeout", transfer.ErrNetwork))
	assert.Equal(t, "Network error, please try again\nYou can try the transfer again\n", buf.String())

	buf.Reset()
	a.printTransferError(&buf, fmt.Errorf("%w: have 1, need 2", transfer.ErrInsufficientBalance))
	assert.Equal(t, "Insufficient balance\n", buf.String())
}
