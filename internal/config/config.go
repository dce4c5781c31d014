package config

import (
	"encoding/hex"
	"errors"
	"os"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Pool family identifiers accepted in SIPHON_POOL_FAMILY.
const (
	FamilyLending = "lending"
	FamilyBoosted = "boosted"
	FamilyStable  = "stable"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode is the execution mode. Anything other than "live" refuses to broadcast.
	Mode string

	// EthereumRPC is the JSON-RPC endpoint of the target chain.
	EthereumRPC string
	// KeeperPrivateKey signs the module transactions. The key's address must
	// be enabled as a module on the safe.
	KeeperPrivateKey string
	// SafeAddress is the custodial avatar holding both positions.
	SafeAddress common.Address
	// MultiSendAddress is the MultiSend library the safe delegatecalls to
	// land an instruction batch in one transaction.
	MultiSendAddress common.Address

	// KeeperIntervalSeconds is the pause between siphon cycles.
	KeeperIntervalSeconds uint64

	// TubeName labels the configured debt/liquidity pairing.
	TubeName string

	// Maker side.
	VatAddress          common.Address
	SpotterAddress      common.Address
	CDPManagerAddress   common.Address
	DaiJoinAddress      common.Address
	DSProxyAddress      common.Address
	ProxyActionsAddress common.Address
	DebtAssetAddress    common.Address
	Ilk                 [32]byte
	CDPID               uint64
	RatioTarget         sdkmath.Int // ray
	RatioTrigger        sdkmath.Int // ray

	// Liquidity side.
	PoolFamily           string
	ParityToleranceBps   uint64
	SlippageToleranceBps uint64
	ReferenceDecimals    int64

	// Curve/Convex lending family.
	PoolAddress    common.Address
	LPTokenAddress common.Address
	RewardsAddress common.Address
	CoinIndex      int64
	PairIndex      int64
	PairDecimals   int64

	// Balancer boosted/stable families.
	BalancerVaultAddress   common.Address
	BalancerQueriesAddress common.Address
	BalancerPoolID         [32]byte
	BPTAddress             common.Address
	GaugeAddress           common.Address
	Stables                []StableCoin
)

// StableCoin names one non-reference underlying stable of a Balancer pool.
type StableCoin struct {
	Token    common.Address
	Decimals int
}

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("SIPHON_MODE")
	if err != nil {
		return err
	}

	EthereumRPC, err = getEnv("ETH_RPC_URL")
	if err != nil {
		return err
	}

	KeeperPrivateKey, err = getEnv("KEEPER_PRIVATE_KEY")
	if err != nil {
		return err
	}

	SafeAddress, err = getEnvAsAddress("SAFE_ADDRESS")
	if err != nil {
		return err
	}

	MultiSendAddress, err = getEnvAsAddress("MULTISEND_ADDRESS")
	if err != nil {
		return err
	}

	KeeperIntervalSeconds, err = getEnvAsUint64("KEEPER_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	TubeName, err = getEnv("TUBE_NAME")
	if err != nil {
		return err
	}

	if err := loadMakerConfig(); err != nil {
		return err
	}
	if err := loadPoolConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("mode", Mode).
		Str("tube", TubeName).
		Str("safe", SafeAddress.Hex()).
		Str("poolFamily", PoolFamily).
		Msg("Configuration loaded successfully.")

	return nil
}

func loadMakerConfig() error {
	var err error

	VatAddress, err = getEnvAsAddress("MAKER_VAT_ADDRESS")
	if err != nil {
		return err
	}
	SpotterAddress, err = getEnvAsAddress("MAKER_SPOTTER_ADDRESS")
	if err != nil {
		return err
	}
	CDPManagerAddress, err = getEnvAsAddress("MAKER_CDP_MANAGER_ADDRESS")
	if err != nil {
		return err
	}
	DaiJoinAddress, err = getEnvAsAddress("MAKER_DAI_JOIN_ADDRESS")
	if err != nil {
		return err
	}
	DSProxyAddress, err = getEnvAsAddress("MAKER_DS_PROXY_ADDRESS")
	if err != nil {
		return err
	}
	ProxyActionsAddress, err = getEnvAsAddress("MAKER_PROXY_ACTIONS_ADDRESS")
	if err != nil {
		return err
	}
	DebtAssetAddress, err = getEnvAsAddress("DEBT_ASSET_ADDRESS")
	if err != nil {
		return err
	}

	ilk, err := getEnv("MAKER_ILK")
	if err != nil {
		return err
	}
	Ilk = ilkToBytes32(ilk)

	CDPID, err = getEnvAsUint64("MAKER_CDP_ID")
	if err != nil {
		return err
	}

	RatioTarget, err = getEnvAsInt("RATIO_TARGET_RAY")
	if err != nil {
		return err
	}
	RatioTrigger, err = getEnvAsInt("RATIO_TRIGGER_RAY")
	if err != nil {
		return err
	}

	return nil
}

func loadPoolConfig() error {
	var err error

	PoolFamily, err = getEnv("SIPHON_POOL_FAMILY")
	if err != nil {
		return err
	}

	ParityToleranceBps, err = getEnvAsUint64("PARITY_TOLERANCE_BPS")
	if err != nil {
		return err
	}
	SlippageToleranceBps, err = getEnvAsUint64("SLIPPAGE_TOLERANCE_BPS")
	if err != nil {
		return err
	}
	ReferenceDecimals, err = getEnvAsInt64("REFERENCE_DECIMALS")
	if err != nil {
		return err
	}

	switch PoolFamily {
	case FamilyLending:
		return loadLendingConfig()
	case FamilyBoosted, FamilyStable:
		return loadBalancerConfig()
	default:
		return errors.New("SIPHON_POOL_FAMILY must be one of lending, boosted, stable; got: " + PoolFamily)
	}
}

func loadLendingConfig() error {
	var err error

	PoolAddress, err = getEnvAsAddress("POOL_ADDRESS")
	if err != nil {
		return err
	}
	LPTokenAddress, err = getEnvAsAddress("POOL_LP_TOKEN_ADDRESS")
	if err != nil {
		return err
	}
	RewardsAddress, err = getEnvAsAddress("POOL_REWARDS_ADDRESS")
	if err != nil {
		return err
	}
	CoinIndex, err = getEnvAsInt64("POOL_COIN_INDEX")
	if err != nil {
		return err
	}
	PairIndex, err = getEnvAsInt64("POOL_PAIR_INDEX")
	if err != nil {
		return err
	}
	PairDecimals, err = getEnvAsInt64("POOL_PAIR_DECIMALS")
	if err != nil {
		return err
	}

	return nil
}

func loadBalancerConfig() error {
	var err error

	BalancerVaultAddress, err = getEnvAsAddress("BALANCER_VAULT_ADDRESS")
	if err != nil {
		return err
	}
	BalancerQueriesAddress, err = getEnvAsAddress("BALANCER_QUERIES_ADDRESS")
	if err != nil {
		return err
	}
	BPTAddress, err = getEnvAsAddress("BALANCER_BPT_ADDRESS")
	if err != nil {
		return err
	}
	GaugeAddress, err = getEnvAsAddress("BALANCER_GAUGE_ADDRESS")
	if err != nil {
		return err
	}

	poolID, err := getEnv("BALANCER_POOL_ID")
	if err != nil {
		return err
	}
	BalancerPoolID, err = parsePoolID(poolID)
	if err != nil {
		return err
	}

	stables, err := getEnv("BALANCER_STABLES")
	if err != nil {
		return err
	}
	Stables, err = parseStables(stables)
	if err != nil {
		return err
	}

	return nil
}

// parsePoolID decodes a 0x-prefixed 32-byte Balancer pool identifier.
func parsePoolID(value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil || len(raw) != 32 {
		return out, errors.New("BALANCER_POOL_ID must be a 32-byte hex string, got: " + value)
	}
	copy(out[:], raw)
	return out, nil
}

// parseStables decodes a comma-separated list of address:decimals pairs,
// e.g. "0xA0b8...:6,0xdAC1...:6".
func parseStables(value string) ([]StableCoin, error) {
	parts := strings.Split(value, ",")
	stables := make([]StableCoin, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 2 || !common.IsHexAddress(fields[0]) {
			return nil, errors.New("BALANCER_STABLES entries must be address:decimals, got: " + part)
		}
		decimals, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.New("BALANCER_STABLES entries must be address:decimals, got: " + part)
		}
		stables = append(stables, StableCoin{Token: common.HexToAddress(fields[0]), Decimals: decimals})
	}
	return stables, nil
}

// ilkToBytes32 left-aligns the ilk label the way Maker stores it.
func ilkToBytes32(ilk string) [32]byte {
	var out [32]byte
	copy(out[:], ilk)
	return out
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an arbitrary-precision integer.
func getEnvAsInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok {
		return sdkmath.ZeroInt(), errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsAddress retrieves an environment variable as a checksummed address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a valid address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}
