package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"debazaar/config"
	"debazaar/core/state"
	"debazaar/native/arbitration"
	"debazaar/native/escrow"
	"debazaar/native/token"
	"debazaar/observability"
	"debazaar/observability/logging"
	"debazaar/rpc"
	"debazaar/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "debazaar.toml", "path to daemon configuration")
	flag.Parse()

	level := logging.ParseLevel(os.Getenv("DEBAZAAR_LOG_LEVEL"))
	logger := logging.Setup("debazaard", os.Getenv("DEBAZAAR_ENV"), level)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db)
	ledger := token.NewLedger(store)
	metrics := observability.Escrow()

	owner, err := cfg.Address(cfg.Owner)
	if err != nil {
		logger.Error("invalid owner address", "error", err)
		os.Exit(1)
	}
	vault, err := cfg.Address(cfg.Vault)
	if err != nil {
		logger.Error("invalid vault address", "error", err)
		os.Exit(1)
	}
	feeCollector, err := cfg.Address(cfg.FeeCollector)
	if err != nil {
		logger.Error("invalid fee collector address", "error", err)
		os.Exit(1)
	}

	listings := escrow.NewEngine()
	listings.SetState(store)
	listings.SetLedger(ledger)
	listings.SetVault(vault)
	listings.SetFeeCollector(feeCollector)
	listings.SetMetrics(metrics)
	listings.SetMinExpiration(cfg.MinExpirationSeconds)
	listings.SetOracleResultFavorsBuyer(cfg.OracleResultFavorsBuyer)
	if owner != ([20]byte{}) {
		if err := listings.Bootstrap(owner); err != nil {
			logger.Error("failed to bootstrap engine owner", "error", err)
			os.Exit(1)
		}
		if listings.FeeBps() != cfg.FeeBps {
			if err := listings.SetFeeBps(owner, cfg.FeeBps); err != nil {
				logger.Error("failed to set protocol fee", "error", err)
				os.Exit(1)
			}
		}
	}

	disputes := arbitration.NewEngine()
	disputes.SetState(store)
	disputes.SetAdmin(owner)
	disputes.SetResolver(listings)
	disputes.SetMetrics(metrics)
	entropy := &localEntropy{disputes: disputes}
	disputes.SetEntropySource(entropy)
	listings.SetDisputeQueue(disputes)

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(listings, disputes).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// localEntropy is a development stand-in for the external verifiable
// randomness provider: free, and fulfills every request out of band with
// bytes from crypto/rand. Production deployments wire the real provider's
// callback into the arbitration engine instead.
type localEntropy struct {
	disputes *arbitration.Engine
}

func (l *localEntropy) Fee() (*big.Int, error) { return big.NewInt(0), nil }

func (l *localEntropy) RequestRandomness() ([32]byte, error) {
	var requestToken [32]byte
	if _, err := rand.Read(requestToken[:]); err != nil {
		return requestToken, err
	}
	go func() {
		// Enqueue persists the correlation token after this call returns;
		// give it a moment before fulfilling, like a real provider would.
		time.Sleep(100 * time.Millisecond)
		var random [32]byte
		if _, err := rand.Read(random[:]); err != nil {
			return
		}
		_ = l.disputes.OnRandomness(requestToken, [20]byte{}, random)
	}()
	return requestToken, nil
}
