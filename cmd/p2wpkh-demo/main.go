// Command p2wpkh-demo drives a regtest node through a two-hop P2WPKH spend:
// a fresh miner key mines 101 blocks, spends the block 1 coinbase to a
// second key, which in turn spends everything to a third.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/fee"
	"github.com/djkazic/p2wpkh-go/internal/journal"
	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/internal/metrics"
	"github.com/djkazic/p2wpkh-go/internal/segwit"
	"github.com/djkazic/p2wpkh-go/internal/utxo"
	"github.com/djkazic/p2wpkh-go/internal/wallet"
)

const maturityBlocks = 101

func main() {
	defaults := bitcoin.DefaultConfig()

	app := &cli.App{
		Name:  "p2wpkh-demo",
		Usage: "Spend P2WPKH outputs through a bitcoind RPC endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc-url", Value: defaults.URL, EnvVars: []string{"BITCOIN_RPC_URL"}, Usage: "bitcoind JSON-RPC endpoint"},
			&cli.StringFlag{Name: "rpc-user", Value: defaults.User, EnvVars: []string{"BITCOIN_RPC_USER"}},
			&cli.StringFlag{Name: "rpc-pass", Value: defaults.Password, EnvVars: []string{"BITCOIN_RPC_PASS"}},
			&cli.DurationFlag{Name: "rpc-timeout", Value: defaults.Timeout},
			&cli.Float64Flag{Name: "rpc-rps", Usage: "max RPC requests per second, 0 for unlimited"},
			&cli.StringFlag{Name: "network", Value: "regtest", Usage: "mainnet, testnet or regtest"},
			&cli.StringFlag{Name: "fee-policy", Value: "vsize", Usage: "vsize (rate × vbytes) or flat (rate as total fee)"},
			&cli.StringFlag{Name: "strategy", Value: "first", Usage: "coin selection: first, largest or smallest"},
			&cli.IntFlag{Name: "conf-target", Value: fee.DefaultConfTarget},
			&cli.StringFlag{Name: "fee-mode", Value: fee.DefaultMode},
			&cli.Int64Flag{Name: "fallback-rate", Value: int64(fee.DefaultFallbackRate)},
			&cli.StringFlag{Name: "wallet", Usage: "create or load this node wallet before running"},
			&cli.StringFlag{Name: "journal", Usage: "path of a journal database for broadcast transactions"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
			&cli.BoolFlag{Name: "dev", Usage: "human-readable debug logging"},
		},
		Action: runDemo,
		Commands: []*cli.Command{
			{
				Name:      "balance",
				Usage:     "Print the scanned balance of one or more addresses",
				ArgsUsage: "<address>...",
				Action:    runBalance,
			},
			{
				Name:   "journal",
				Usage:  "List journaled transactions",
				Action: runJournal,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type env struct {
	logger  *zap.Logger
	client  *bitcoin.RPCClient
	network keys.Network
	opts    wallet.Options
	store   *journal.Store
	stop    func()
}

func setup(c *cli.Context) (*env, error) {
	var logger *zap.Logger
	var err error
	if c.Bool("dev") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	network, err := keys.ParseNetwork(c.String("network"))
	if err != nil {
		return nil, err
	}
	policy, err := segwit.ParseFeePolicy(c.String("fee-policy"))
	if err != nil {
		return nil, err
	}
	strategy, err := utxo.ParseStrategy(c.String("strategy"))
	if err != nil {
		return nil, err
	}

	opts := wallet.DefaultOptions()
	opts.Network = network
	opts.FeePolicy = policy
	opts.Strategy = strategy
	opts.Fee = fee.Config{
		ConfTarget:   c.Int("conf-target"),
		Mode:         c.String("fee-mode"),
		FallbackRate: segwit.FeeRate(c.Int64("fallback-rate")),
	}

	client := bitcoin.NewRPCClient(bitcoin.Config{
		URL:               c.String("rpc-url"),
		User:              c.String("rpc-user"),
		Password:          c.String("rpc-pass"),
		Timeout:           c.Duration("rpc-timeout"),
		RequestsPerSecond: c.Float64("rpc-rps"),
		Burst:             1,
	}, logger.Named("rpc"))

	e := &env{logger: logger, client: client, network: network, opts: opts, stop: func() {}}

	if path := c.String("journal"); path != "" {
		store, err := journal.NewStore(path, logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	if addr := c.String("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", addr))
		e.stop = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
	}
	return e, nil
}

func (e *env) close() {
	e.stop()
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("close journal", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func runDemo(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	if e.network != keys.Regtest {
		return fmt.Errorf("the demo mines blocks and needs regtest, not %s", e.network)
	}

	ctx, cancel := signalContext(c)
	defer cancel()
	log := e.logger

	info, err := e.client.GetBlockchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("connect to node: %w", err)
	}
	log.Info("connected to node",
		zap.String("chain", info.Chain),
		zap.Int64("blocks", info.Blocks),
		zap.String("best_block", info.BestBlockHash),
	)

	if name := c.String("wallet"); name != "" {
		if err := wallet.EnsureWallet(ctx, e.client, name, log); err != nil {
			return err
		}
	}

	spender, err := wallet.NewSpender(e.client, e.opts, e.store, log.Named("spend"))
	if err != nil {
		return err
	}

	miner, minerAddr, err := keys.GenerateIdentity(e.network, rand.Reader)
	if err != nil {
		return err
	}
	defer miner.Zero()
	log.Info("miner address", zap.String("address", minerAddr.String()))

	if _, err := wallet.Mine(ctx, e.client, maturityBlocks, minerAddr, log); err != nil {
		return err
	}

	recipient1, recipient1Addr, err := keys.GenerateIdentity(e.network, rand.Reader)
	if err != nil {
		return err
	}
	defer recipient1.Zero()
	log.Info("recipient1 address", zap.String("address", recipient1Addr.String()))

	coinbase, err := wallet.CoinbaseUTXO(ctx, e.client, 1, minerAddr)
	if err != nil {
		return err
	}
	log.Info("coinbase utxo",
		zap.Stringer("outpoint", coinbase.OutPoint),
		zap.Int64("value", coinbase.Value),
	)

	first, err := spender.SpendOutput(ctx, coinbase, miner, recipient1Addr)
	if err != nil {
		return fmt.Errorf("spend coinbase: %w", err)
	}
	fmt.Printf("Signed transaction hex: %s\n", first.Hex)
	fmt.Printf("Transaction broadcast, txid %s\n", first.TxID)

	if _, err := wallet.Mine(ctx, e.client, 1, minerAddr, log); err != nil {
		return err
	}
	waitCtx, cancelWait := context.WithTimeout(ctx, time.Minute)
	snap, err := wallet.NewPoller(spender.Locator(), time.Second, log.Named("poll")).
		WaitForFunds(waitCtx, recipient1Addr, first.Tx.Outputs[0].Value)
	cancelWait()
	if err != nil {
		return fmt.Errorf("wait for recipient1 funds: %w", err)
	}
	fmt.Printf("Address %s has balance: %s BTC\n", recipient1Addr, bitcoin.SatsToBTC(snap.Total))

	recipient2, recipient2Addr, err := keys.GenerateIdentity(e.network, rand.Reader)
	if err != nil {
		return err
	}
	defer recipient2.Zero()
	log.Info("recipient2 address", zap.String("address", recipient2Addr.String()))

	second, err := spender.Spend(ctx, recipient1, recipient2Addr)
	if err != nil {
		return fmt.Errorf("spend recipient1: %w", err)
	}
	fmt.Printf("Signed transaction hex (recipient1 -> recipient2): %s\n", second.Hex)
	fmt.Printf("Transaction broadcast, txid %s\n", second.TxID)

	if _, err := wallet.Mine(ctx, e.client, 1, minerAddr, log); err != nil {
		return err
	}

	balances, err := scanBalances(ctx, spender.Locator(), []keys.Address{recipient1Addr, recipient2Addr})
	if err != nil {
		return err
	}
	fmt.Printf("Final balance of recipient1: %s BTC\n", bitcoin.SatsToBTC(balances[0]))
	fmt.Printf("Final balance of recipient2: %s BTC\n", bitcoin.SatsToBTC(balances[1]))
	return nil
}

func runBalance(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	if c.NArg() == 0 {
		return fmt.Errorf("at least one address required")
	}
	addrs := make([]keys.Address, c.NArg())
	for i, s := range c.Args().Slice() {
		addr, err := keys.DecodeAddress(s)
		if err != nil {
			return err
		}
		if addr.Network() != e.network {
			return fmt.Errorf("%s is a %s address, not %s", s, addr.Network(), e.network)
		}
		addrs[i] = addr
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	balances, err := scanBalances(ctx, utxo.NewLocator(e.client, e.logger.Named("utxo")), addrs)
	if err != nil {
		return err
	}
	for i, addr := range addrs {
		fmt.Printf("%s %s BTC\n", addr, bitcoin.SatsToBTC(balances[i]))
	}
	return nil
}

func runJournal(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	if e.store == nil {
		return fmt.Errorf("--journal is required")
	}

	recs, err := e.store.List()
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%s %s %s -> %s %d sats (fee %d, %s)\n",
			r.Broadcast.Format(time.RFC3339), r.TxIDHex(), r.Spent, r.Destination, r.OutputValue, r.Fee, r.FeePolicy)
	}
	return nil
}

// scanBalances scans addrs concurrently; balances are returned in order.
func scanBalances(ctx context.Context, l *utxo.Locator, addrs []keys.Address) ([]int64, error) {
	balances := make([]int64, len(addrs))
	g, ctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			bal, err := l.Balance(ctx, addr)
			if err != nil {
				return err
			}
			balances[i] = bal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return balances, nil
}
