package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gnosisguild/siphon/internal/chain"
	"github.com/gnosisguild/siphon/internal/config"
	"github.com/gnosisguild/siphon/internal/debt"
	"github.com/gnosisguild/siphon/internal/keeper"
	"github.com/gnosisguild/siphon/internal/liquidity"
	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/simulations"
	"github.com/gnosisguild/siphon/internal/siphon"
	"github.com/gnosisguild/siphon/internal/state"
	"github.com/gnosisguild/siphon/internal/web"
)

// main is the entry point for the Siphon keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Siphon Keeper Starting...")

	// Initialize Database Connection (cycle snapshots only; optional)
	persist := os.Getenv("DB_HOST") != ""
	if persist {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	} else {
		log.Info().Msg("DB_HOST not set. Cycle snapshots will not be persisted.")
	}

	// Shut the loop down cleanly on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Dispatcher Initialization (with Safety Switch) ---
	var dispatcher *siphon.Siphon

	switch config.Mode {
	case "live":
		log.Warn().Msg("Initializing Siphon in LIVE mode. Real transactions will be broadcast.")
		client, err := chain.Dial(ctx, config.EthereumRPC, config.KeeperPrivateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Ethereum node")
		}
		defer client.Close()
		log.Info().Str("endpoint", config.EthereumRPC).Str("sender", client.Sender().Hex()).Msg("Ethereum node connected")

		dispatcher, err = buildLiveDispatcher(client)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize live dispatcher")
		}
	case "dry-run":
		log.Warn().Msg("Initializing Siphon in DRY-RUN mode. Cycles run against a synthetic pool and vault; nothing is broadcast.")
		var err error
		dispatcher, err = buildSimulatedDispatcher()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize simulated dispatcher")
		}
	default:
		log.Fatal().Msg("SIPHON_MODE is not set to 'live'. Halting to prevent accidental execution. Set SIPHON_MODE=live to run, or SIPHON_MODE=dry-run for a synthetic rehearsal.")
	}

	// --- 3. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, dispatcher, persist)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting Siphon web dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Start Keeper Main Loop ---
	keeperInstance, err := keeper.New(keeper.Config{
		Dispatcher: dispatcher,
		Persist:    persist,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper instance")
	}

	interval := time.Duration(config.KeeperIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting keeper main loop")

	keeperInstance.RunLoop(ctx, interval)
	log.Info().Msg("Keeper loop stopped. Shutting down.")
}

// buildLiveDispatcher wires the configured tube against live chain state.
// The keeper's signing address owns the adapters and relays instructions
// through the safe as an enabled module.
func buildLiveDispatcher(client *chain.Client) (*siphon.Siphon, error) {
	operator := client.Sender()

	reader, err := chain.NewVaultReader(chain.VaultReaderConfig{
		Vat:     config.VatAddress,
		Spotter: config.SpotterAddress,
		Ilk:     config.Ilk,
		Urn:     config.DSProxyAddress,
	}, client)
	if err != nil {
		return nil, err
	}

	debtAdapter, err := debt.New(debt.Config{
		Asset:        config.DebtAssetAddress,
		CDPManager:   config.CDPManagerAddress,
		DaiJoin:      config.DaiJoinAddress,
		DSProxy:      config.DSProxyAddress,
		ProxyActions: config.ProxyActionsAddress,
		CDP:          config.CDPID,
		Owner:        operator,
		RatioTarget:  config.RatioTarget,
		RatioTrigger: config.RatioTrigger,
	}, reader)
	if err != nil {
		return nil, err
	}

	strategy, err := buildLiveStrategy(client)
	if err != nil {
		return nil, err
	}

	liquidityAdapter, err := liquidity.New(liquidity.Config{
		Owner:                operator,
		ParityToleranceBps:   config.ParityToleranceBps,
		SlippageToleranceBps: config.SlippageToleranceBps,
	}, strategy)
	if err != nil {
		return nil, err
	}

	executor, err := chain.NewModuleExecutor(config.SafeAddress, config.MultiSendAddress, client)
	if err != nil {
		return nil, err
	}

	dispatcher, err := siphon.New(operator, executor)
	if err != nil {
		return nil, err
	}
	if err := dispatcher.ConnectTube(operator, config.TubeName, debtAdapter, liquidityAdapter); err != nil {
		return nil, err
	}
	return dispatcher, nil
}

// buildLiveStrategy selects the pool family math from configuration.
func buildLiveStrategy(client *chain.Client) (liquidity.PoolMathStrategy, error) {
	switch config.PoolFamily {
	case config.FamilyLending:
		lendingClient, err := chain.NewLendingClient(chain.LendingClientConfig{
			Pool:              config.PoolAddress,
			LPToken:           config.LPTokenAddress,
			Rewards:           config.RewardsAddress,
			Safe:              config.SafeAddress,
			CoinIndex:         config.CoinIndex,
			PairIndex:         config.PairIndex,
			PairDecimals:      int(config.PairDecimals),
			ReferenceDecimals: int(config.ReferenceDecimals),
		}, client)
		if err != nil {
			return nil, err
		}
		return liquidity.NewLendingPoolStrategy(liquidity.LendingPoolConfig{
			Pool:      config.PoolAddress,
			Rewards:   config.RewardsAddress,
			Reference: config.DebtAssetAddress,
			Safe:      config.SafeAddress,
			CoinIndex: config.CoinIndex,
		}, lendingClient)
	case config.FamilyBoosted, config.FamilyStable:
		stables := make([]chain.StableCoin, len(config.Stables))
		for i, s := range config.Stables {
			stables[i] = chain.StableCoin{Token: s.Token, Decimals: s.Decimals}
		}
		balancerClient, err := chain.NewBalancerClient(chain.BalancerClientConfig{
			Vault:             config.BalancerVaultAddress,
			Queries:           config.BalancerQueriesAddress,
			PoolID:            config.BalancerPoolID,
			BPT:               config.BPTAddress,
			Gauge:             config.GaugeAddress,
			Safe:              config.SafeAddress,
			Reference:         config.DebtAssetAddress,
			ReferenceDecimals: int(config.ReferenceDecimals),
			Stables:           stables,
		}, client)
		if err != nil {
			return nil, err
		}
		if config.PoolFamily == config.FamilyBoosted {
			return liquidity.NewBoostedPoolStrategy(liquidity.BoostedPoolConfig{
				Vault:     config.BalancerVaultAddress,
				PoolID:    config.BalancerPoolID,
				BPT:       config.BPTAddress,
				Gauge:     config.GaugeAddress,
				Reference: config.DebtAssetAddress,
				Safe:      config.SafeAddress,
			}, balancerClient)
		}
		return liquidity.NewStablePoolStrategy(liquidity.StablePoolConfig{
			Vault:     config.BalancerVaultAddress,
			PoolID:    config.BalancerPoolID,
			BPT:       config.BPTAddress,
			Gauge:     config.GaugeAddress,
			Reference: config.DebtAssetAddress,
			Safe:      config.SafeAddress,
		}, balancerClient)
	default:
		return nil, fmt.Errorf("unknown pool family: %s", config.PoolFamily)
	}
}

// buildSimulatedDispatcher stands up an in-memory pool, vault and safe so
// the full cycle can be rehearsed without a node. Only the Curve lending
// family is simulated; the vault is seeded undercollateralized enough that
// typical trigger settings fire on the first cycle.
func buildSimulatedDispatcher() (*siphon.Siphon, error) {
	if config.PoolFamily != config.FamilyLending {
		log.Fatal().Str("family", config.PoolFamily).Msg("SIPHON_MODE=dry-run only simulates the lending pool family")
	}

	pairToken := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	otherHolder := common.HexToAddress("0x00000000000000000000000000000000000000AB")
	operator := config.SafeAddress

	bank := simulations.NewBank()
	pool, err := simulations.NewStableSwapPool(simulations.PoolConfig{
		Amp:      200,
		FeeBps:   4,
		Tokens:   [2]common.Address{config.DebtAssetAddress, pairToken},
		Decimals: [2]int{18, 18},
		LPToken:  config.LPTokenAddress,
		Reserves: [2]sdkmath.Int{wad(20_000_000), wad(20_000_000)},
	}, bank)
	if err != nil {
		return nil, err
	}

	// The avatar holds 5M LP shares, 3.5M of them staked. The rest of the
	// supply sits with an unrelated holder.
	supply := pool.TotalSupply()
	bank.Mint(config.LPTokenAddress, config.SafeAddress, wad(5_000_000))
	bank.Mint(config.LPTokenAddress, otherHolder, supply.Sub(wad(5_000_000)))

	rewards := simulations.NewRewardsPool(pool, bank)
	if err := rewards.Stake(config.SafeAddress, wad(3_500_000)); err != nil {
		return nil, err
	}

	vat := simulations.NewMockVat(debt.VaultState{
		Ink:  mustInt("73838175926210955510648"),
		Art:  mustInt("22843164136680524273192955"),
		Rate: mustInt("1085236284631994047918634813"),
		Spot: mustInt("1037037037037037037037035624335"),
		Mat:  mustInt("1350000000000000000000000000"),
	})

	safe := simulations.NewSimSafe(simulations.SafeConfig{
		Address:     config.SafeAddress,
		Asset:       config.DebtAssetAddress,
		DSProxy:     config.DSProxyAddress,
		CurvePool:   config.PoolAddress,
		ConvexVault: config.RewardsAddress,
	}, bank, vat, pool, rewards)

	debtAdapter, err := debt.New(debt.Config{
		Asset:        config.DebtAssetAddress,
		CDPManager:   config.CDPManagerAddress,
		DaiJoin:      config.DaiJoinAddress,
		DSProxy:      config.DSProxyAddress,
		ProxyActions: config.ProxyActionsAddress,
		CDP:          config.CDPID,
		Owner:        operator,
		RatioTarget:  config.RatioTarget,
		RatioTrigger: config.RatioTrigger,
	}, vat)
	if err != nil {
		return nil, err
	}

	// The synthetic pool always carries the debt asset at index zero.
	lendingClient := simulations.NewLendingClient(pool, rewards, bank, config.SafeAddress, 0)
	strategy, err := liquidity.NewLendingPoolStrategy(liquidity.LendingPoolConfig{
		Pool:      config.PoolAddress,
		Rewards:   config.RewardsAddress,
		Reference: config.DebtAssetAddress,
		Safe:      config.SafeAddress,
		CoinIndex: 0,
	}, lendingClient)
	if err != nil {
		return nil, err
	}

	liquidityAdapter, err := liquidity.New(liquidity.Config{
		Owner:                operator,
		ParityToleranceBps:   config.ParityToleranceBps,
		SlippageToleranceBps: config.SlippageToleranceBps,
	}, strategy)
	if err != nil {
		return nil, err
	}

	dispatcher, err := siphon.New(operator, safe)
	if err != nil {
		return nil, err
	}
	if err := dispatcher.ConnectTube(operator, config.TubeName, debtAdapter, liquidityAdapter); err != nil {
		return nil, err
	}
	return dispatcher, nil
}

func wad(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func mustInt(s string) sdkmath.Int {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		log.Fatal().Str("value", s).Msg("invalid integer literal")
	}
	return v
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
