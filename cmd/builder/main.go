package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/urfave/cli"

	"github.com/syncrollup/core/internal/admission"
	"github.com/syncrollup/core/internal/derive"
	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/flags"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/metrics"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/rpcapi"
	"github.com/syncrollup/core/internal/submit"
	"github.com/syncrollup/core/internal/txmgr"
)

func main() {
	app := cli.NewApp()
	app.Name = "builder"
	app.Usage = "cross-chain transaction admission, discovery, and submission pipeline (§4.3, §4.4)"
	app.Flags = flags.BuilderFlags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.New().Error("builder exited with error", "err", err)
		os.Exit(exitCode(err))
	}
}

func run(c *cli.Context) error {
	l := log.New()
	l.SetHandler(log.StreamHandler(os.Stdout, log.TerminalFormat(false)))

	cfg := rollup.Default()
	cfg.L2ChainID = new(big.Int).SetUint64(c.Uint64(flags.L2ChainIDFlag.Name))
	cfg.L1ChainID = new(big.Int).SetUint64(c.Uint64(flags.L1ChainIDFlag.Name))
	cfg.L1DeploymentBlock = c.Uint64(flags.L1DeploymentBlockFlag.Name)
	rollupContract, err := flags.ParseRollupContract(c.String(flags.RollupContractFlag.Name))
	if err != nil {
		return err
	}
	cfg.L1RollupContract = rollupContract

	signingKey, err := parseSigningKey(c.String(flags.SigningKeyFlag.Name))
	if err != nil {
		return fmt.Errorf("builder: signing key: %w", err)
	}
	adminKey, err := parseSigningKey(c.String(flags.AdminSigningKeyFlag.Name))
	if err != nil {
		return fmt.Errorf("builder: admin signing key: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l1, err := l1chain.DialEthClientAdapter(ctx, c.String(flags.L1RPCURLFlag.Name))
	if err != nil {
		return fmt.Errorf("builder: dial L1: %w", err)
	}

	// The Builder drives its own private L2 instance, distinct from any
	// fullnode's canonical one, so discovery simulations never touch
	// state anyone else observes (§4.5 "the Builder runs its own
	// private instance of the Derivation Engine plus a scratch EVM").
	l2Client, err := l2chain.Dial(ctx, c.String(flags.L2RPCURLFlag.Name))
	if err != nil {
		return fmt.Errorf("builder: dial private L2: %w", err)
	}

	m := metrics.New("builder")
	go func() {
		if err := m.Serve(ctx, c.String(flags.MetricsHostFlag.Name), c.Int(flags.MetricsPortFlag.Name)); err != nil && err != http.ErrServerClosed {
			l.Error("metrics server stopped", "err", err)
		}
	}()

	driver := l2chain.NewDriver(l, l2Client, cfg, rollup.ComputeAddresses())

	l1GenesisRoot, err := l1chain.L2BlockHashAt(ctx, l1, cfg.L1RollupContract, new(big.Int).SetUint64(cfg.L1DeploymentBlock))
	if err != nil {
		return fmt.Errorf("builder: fetch L1-recorded genesis root: %w", err)
	}
	derivedGenesisRoot, err := l2chain.BuildGenesis(ctx, driver)
	if err != nil {
		return fmt.Errorf("builder: build private genesis: %w", err)
	}
	if err := l2chain.VerifyGenesis(derivedGenesisRoot, l1GenesisRoot); err != nil {
		return err
	}
	l.Info("private genesis verified", "root", derivedGenesisRoot)

	// Keep the private instance caught up to the L1 tip in the
	// background so admission always simulates against current state
	// (§4.4 step 1 "ensure the Builder's private derivation engine is
	// caught up to the L1 tip").
	engine := derive.NewEngine(l, driver, cfg)
	engine.OnAdvance(func(block *types.Block, ev l1chain.Event) {
		m.L2BlockNumber.Set(float64(block.NumberU64()))
		m.L1EventsProcessedTotal.WithLabelValues(kindLabel(ev)).Inc()
	})
	source := l1chain.NewSource(l, l1, cfg)

	mgr := txmgr.New(l, l1, cfg.L1ChainID, signingKey)
	signer := submit.NewAdminSigner(adminKey)
	pipeline := submit.NewPipeline(l, cfg, driver, l1, mgr, signer)

	handler := admission.NewHandler(l, cfg, driver, l1, pipeline, source)

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("builder", rpcapi.NewBuilderAPI(handler)); err != nil {
		return fmt.Errorf("builder: register rpc: %w", err)
	}
	go serveRPC(ctx, l, rpcServer, c.String(flags.RPCHostFlag.Name), c.Int(flags.RPCPortFlag.Name))

	m.RecordUp()
	if err := source.CatchUp(ctx, engine); err != nil {
		return classifyExit(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- source.Run(ctx, engine) }()

	select {
	case <-sigCh:
		l.Info("shutting down on signal")
		cancel()
		return nil
	case err := <-runErrCh:
		return classifyExit(err)
	}
}

func serveRPC(ctx context.Context, l log.Logger, rpcServer *rpc.Server, host string, port int) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{Addr: addr, Handler: rpcServer}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()
	l.Info("serving builder RPC", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.Error("rpc server stopped", "err", err)
	}
}

func parseSigningKey(raw string) (*ecdsa.PrivateKey, error) {
	if raw == "" {
		return nil, fmt.Errorf("no key configured")
	}
	return crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
}

func classifyExit(err error) error {
	if err == nil || err == context.Canceled {
		return nil
	}
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := errs.Of(err); ok && kind.Fatal() {
		return 1
	}
	return 1
}

func kindLabel(ev l1chain.Event) string {
	switch ev.Kind {
	case l1chain.KindL2BlockProcessed:
		return "L2BlockProcessed"
	case l1chain.KindIncomingCallHandled:
		return "IncomingCallHandled"
	default:
		return "other"
	}
}
