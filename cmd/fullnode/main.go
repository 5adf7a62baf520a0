// Command fullnode runs the L2 State Derivation Engine: it builds
// genesis, replays the L1 rollup contract's event stream against its
// own external L2 EVM, and serves the resulting state over JSON-RPC
// (§4.1, §4.2, §6).
package main

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/urfave/cli"

	"github.com/syncrollup/core/internal/derive"
	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/flags"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/metrics"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/rpcapi"
)

func main() {
	app := cli.NewApp()
	app.Name = "fullnode"
	app.Usage = "deterministic L2 state derivation engine"
	app.Flags = flags.FullnodeFlags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l1Raw, err := ethclient.DialContext(ctx, c.String(flags.L1RPCURLFlag.Name))
	if err != nil {
		return fmt.Errorf("fullnode: dial l1: %w", err)
	}
	l1 := l1chain.NewEthClientAdapter(l1Raw)

	l2Client, err := l2chain.Dial(ctx, c.String(flags.L2RPCURLFlag.Name))
	if err != nil {
		return fmt.Errorf("fullnode: dial l2: %w", err)
	}

	m := metrics.New("fullnode")
	go func() {
		if err := m.Serve(ctx, c.String(flags.MetricsHostFlag.Name), c.Int(flags.MetricsPortFlag.Name)); err != nil {
			l.Warn("metrics server stopped", "err", err)
		}
	}()

	driver := l2chain.NewDriver(l, l2Client, cfg, rollup.ComputeAddresses())

	l1GenesisRoot, err := l1chain.L2BlockHashAt(ctx, l1, cfg.L1RollupContract, new(big.Int).SetUint64(cfg.L1DeploymentBlock))
	if err != nil {
		return fmt.Errorf("fullnode: fetch l1-recorded genesis root: %w", err)
	}

	derivedGenesisRoot, err := l2chain.BuildGenesis(ctx, driver)
	if err != nil {
		return err
	}
	if err := l2chain.VerifyGenesis(derivedGenesisRoot, l1GenesisRoot); err != nil {
		return err
	}
	l.Info("genesis verified", "root", derivedGenesisRoot)

	engine := derive.NewEngine(l, driver, cfg)
	engine.OnAdvance(func(block *types.Block, ev l1chain.Event) {
		m.L2BlockNumber.Set(float64(block.NumberU64()))
		m.L1EventsProcessedTotal.WithLabelValues(kindLabel(ev)).Inc()
	})

	source := l1chain.NewSource(l, l1, cfg)

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("eth", rpcapi.NewFullnodeAPI(l2Client)); err != nil {
		return err
	}
	if err := rpcServer.RegisterName("rollup", rpcapi.NewRollupAPI(engine.StateRoot)); err != nil {
		return err
	}
	go serveRPC(ctx, l, rpcServer, c.String(flags.RPCHostFlag.Name), c.Int(flags.RPCPortFlag.Name))

	m.RecordUp()
	m.SetDerivationIdle(false)
	if err := source.CatchUp(ctx, engine); err != nil {
		return classifyExit(err)
	}
	m.SetDerivationIdle(true)

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

// serveRPC exposes rpcServer over plain JSON-RPC HTTP, shutting down
// when ctx is cancelled. *rpc.Server implements http.Handler directly,
// so no additional muxing is needed beyond the one route (§6 "Public
// Fullnode RPC (served)").
func serveRPC(ctx context.Context, l log.Logger, rpcServer *rpc.Server, host string, port int) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{Addr: addr, Handler: rpcServer}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()
	l.Info("serving public RPC", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.Error("rpc server stopped", "err", err)
	}
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
