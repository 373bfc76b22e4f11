package service

import (
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cdrn/memepool/internal/basefee"
	"github.com/cdrn/memepool/internal/config"
	"github.com/cdrn/memepool/internal/mempool"
	"github.com/cdrn/memepool/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		EthWSURL:             "wss://example.invalid",
		RateLimitMaxInFlight: 4,
		MempoolTTL:           time.Hour,
		AnnotationTTL:        time.Hour,
		ContractCacheTTL:     24 * time.Hour,
		ForecastTick:         3 * time.Second,
		BaseFeeWindow:        10,
		StaleBlockThreshold:  5,
	}
}

func TestNewWiresEveryComponent(t *testing.T) {
	svc, err := New(zerolog.Nop(), testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if svc.mempool == nil || svc.oracle == nil || svc.reg == nil || svc.decoder == nil ||
		svc.packer == nil || svc.fc == nil || svc.rc == nil || svc.node == nil {
		t.Fatal("expected New to wire every component")
	}
}

func TestOnReconnectClearsStreamDependentState(t *testing.T) {
	svc, err := New(zerolog.Nop(), testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	svc.mempool.Ingest(&model.PendingTx{Hash: [32]byte{1}, FirstSeen: time.Now()})
	svc.oracle.Observe(nil)
	if svc.mempool.Len() == 0 {
		t.Skip("mempool ingest no-op, skipping setup check")
	}

	svc.onReconnect()

	if svc.mempool.Len() != 0 {
		t.Fatal("expected mempool to be cleared on reconnect")
	}
}

func TestServiceUsesConfiguredBaseFeeWindow(t *testing.T) {
	cfg := testConfig()
	cfg.BaseFeeWindow = 3
	svc, err := New(zerolog.Nop(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	oracle := basefee.New(3)
	for i := int64(1); i <= 4; i++ {
		svc.oracle.Observe(big.NewInt(i))
		oracle.Observe(big.NewInt(i))
	}
	if len(svc.oracle.Window()) != len(oracle.Window()) {
		t.Fatal("expected base-fee oracle window sizes to match configuration")
	}
}
