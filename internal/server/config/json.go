package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/usertokens/internal/flagx"
	"github.com/dmitrijs2005/usertokens/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept both "10m"
// style strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP    string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC    string          `json:"endpoint_addr_grpc"`
	DatabaseDriver      string          `json:"database_driver"`
	DatabaseDSN         string          `json:"database_dsn"`
	AdminKey            string          `json:"admin_key"`
	RedisAddr           string          `json:"redis_addr"`
	ReapInterval        *timex.Duration `json:"reap_interval"`
	ReapLockTTL         timex.Duration  `json:"reap_lock_ttl"`
	IssueAttempts       int             `json:"issue_attempts"`
	StorageRetries      *int            `json:"storage_retries"`
	RetryBaseDelay      timex.Duration  `json:"retry_base_delay"`
	IssueRateLimit      *int            `json:"issue_rate_limit"`
	HealthCheckInterval timex.Duration  `json:"health_check_interval"`
	LogLevel            string          `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c or -config.
// Fields missing from the file keep their current value. Pointer fields
// distinguish an explicit zero (for example "reap_interval": 0 to disable
// the reaper) from an absent key.
//
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AdminKey, c.AdminKey)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)

	if c.ReapInterval != nil {
		config.ReapInterval = c.ReapInterval.Duration
	}
	if c.ReapLockTTL.Duration > 0 {
		config.ReapLockTTL = c.ReapLockTTL.Duration
	}
	if c.IssueAttempts > 0 {
		config.IssueAttempts = c.IssueAttempts
	}
	if c.StorageRetries != nil {
		config.StorageRetries = *c.StorageRetries
	}
	if c.RetryBaseDelay.Duration > 0 {
		config.RetryBaseDelay = c.RetryBaseDelay.Duration
	}
	if c.IssueRateLimit != nil {
		config.IssueRateLimit = *c.IssueRateLimit
	}
	if c.HealthCheckInterval.Duration > 0 {
		config.HealthCheckInterval = c.HealthCheckInterval.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
