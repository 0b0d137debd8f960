package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ledgerdesk/ledgerdesk/pkg/wallet"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory holding the wallet file and the
	// account cache
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// WalletFileKey is the path of the wallet file. Relative paths are
	// resolved against the datadir
	WalletFileKey = "WALLET_FILE"
	// WalletUnlockPasswordFileKey defines full path to a file that contains
	// the password for unlocking the wallet, if provided the password is not
	// prompted
	WalletUnlockPasswordFileKey = "WALLET_UNLOCK_PASSWORD_FILE"
	// ServersKey is the comma or space separated list of ws:// or wss://
	// ledger servers to connect to
	ServersKey = "SERVERS"
	// KDFIterationsKey is the scrypt cost used when creating or re-encrypting
	// a wallet. Must be a power of 2 not above wallet.MaxIterations
	KDFIterationsKey = "KDF_ITERATIONS"
	// ReconnectBaseDelayKey is the delay before the first reconnection attempt
	ReconnectBaseDelayKey = "RECONNECT_BASE_DELAY"
	// ReconnectMaxDelayKey caps the delay between reconnection attempts
	ReconnectMaxDelayKey = "RECONNECT_MAX_DELAY"
	// ReconnectMaxExponentKey caps the exponent of the reconnection backoff
	ReconnectMaxExponentKey = "RECONNECT_MAX_EXPONENT"
	// IdleTimeoutKey is how long the session waits for any message before
	// considering the connection dead
	IdleTimeoutKey = "IDLE_TIMEOUT"
	// RequestsPerSecondKey limits the rate of outgoing requests, 0 disables
	// the limit
	RequestsPerSecondKey = "REQUESTS_PER_SECOND"
	// TxHistoryLimitKey is the number of transactions kept per account
	TxHistoryLimitKey = "TX_HISTORY_LIMIT"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// MetricsAddrKey is the <host:port> the prometheus metrics are served on
	// by the watch command, empty disables them
	MetricsAddrKey = "METRICS_ADDR"
	// BreakerMaxFailuresKey is the number of consecutive failures that opens
	// the circuit breaker of a server
	BreakerMaxFailuresKey = "BREAKER_MAX_FAILURES"
	// BreakerTimeoutKey is how long a server is skipped once its breaker opened
	BreakerTimeoutKey = "BREAKER_TIMEOUT"

	DBBadger   = "badger"
	DBInMemory = "inmemory"

	DbLocation = "db"

	defaultWalletFile    = "wallet.json"
	defaultKDFIterations = 1 << 18
)

var (
	vip            *viper.Viper
	defaultDatadir = btcutil.AppDataDir("ledgerdesk", false)

	defaultServers = []string{
		"wss://xrplcluster.com",
		"wss://s1.ripple.com",
		"wss://s2.ripple.com",
	}
)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("LEDGERDESK")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(WalletFileKey, defaultWalletFile)
	vip.SetDefault(ServersKey, strings.Join(defaultServers, ","))
	vip.SetDefault(KDFIterationsKey, defaultKDFIterations)
	vip.SetDefault(ReconnectBaseDelayKey, time.Second)
	vip.SetDefault(ReconnectMaxDelayKey, 2*time.Minute)
	vip.SetDefault(ReconnectMaxExponentKey, 7)
	vip.SetDefault(IdleTimeoutKey, time.Minute)
	vip.SetDefault(RequestsPerSecondKey, 20)
	vip.SetDefault(TxHistoryLimitKey, 200)
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(BreakerMaxFailuresKey, 3)
	vip.SetDefault(BreakerTimeoutKey, 30*time.Second)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetWalletPath returns the wallet file path, resolved against the datadir
// when relative.
func GetWalletPath() string {
	path := GetString(WalletFileKey)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(GetDatadir(), path)
}

// GetDbDir returns the directory of the account cache.
func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

// GetServers returns the configured ledger servers.
func GetServers() []string {
	return splitList(GetString(ServersKey))
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if len(GetString(WalletFileKey)) <= 0 {
		return fmt.Errorf("missing wallet file")
	}

	servers := GetServers()
	if len(servers) <= 0 {
		return fmt.Errorf("at least one server must be configured")
	}
	for _, s := range servers {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("server %s must be a ws:// or wss:// url", s)
		}
	}

	if !wallet.IsValidIterations(GetInt(KDFIterationsKey)) {
		return fmt.Errorf(
			"%s must be a power of 2 between 2 and %d", KDFIterationsKey, wallet.MaxIterations,
		)
	}

	baseDelay, maxDelay := GetDuration(ReconnectBaseDelayKey), GetDuration(ReconnectMaxDelayKey)
	if baseDelay <= 0 {
		return fmt.Errorf("%s must be a positive duration", ReconnectBaseDelayKey)
	}
	if maxDelay < baseDelay {
		return fmt.Errorf(
			"%s must be equal or greater than %s", ReconnectMaxDelayKey, ReconnectBaseDelayKey,
		)
	}
	if GetInt(ReconnectMaxExponentKey) < 0 {
		return fmt.Errorf("%s must not be negative", ReconnectMaxExponentKey)
	}
	if GetDuration(IdleTimeoutKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", IdleTimeoutKey)
	}
	if GetInt(RequestsPerSecondKey) < 0 {
		return fmt.Errorf("%s must not be negative", RequestsPerSecondKey)
	}
	if GetInt(TxHistoryLimitKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", TxHistoryLimitKey)
	}
	if GetInt(BreakerMaxFailuresKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", BreakerMaxFailuresKey)
	}
	if GetDuration(BreakerTimeoutKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", BreakerTimeoutKey)
	}

	dbType := GetString(DBTypeKey)
	if dbType != DBBadger && dbType != DBInMemory {
		return fmt.Errorf("%s must be either '%s' or '%s'", DBTypeKey, DBBadger, DBInMemory)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}

	if GetString(DBTypeKey) == DBBadger {
		if err := makeDirectoryIfNotExists(GetDbDir()); err != nil {
			return err
		}
	}

	return makeDirectoryIfNotExists(filepath.Dir(GetWalletPath()))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func splitList(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
