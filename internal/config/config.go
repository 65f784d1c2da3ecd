// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "bequest.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin             = "badger"
	DefaultMetadataPlugin         = "sqlite"
	DefaultApiMaxConnectionsPerIp = 64
	DefaultApiUrl                 = "http://127.0.0.1:8080"
)

var ErrInvalidConfig = errors.New("invalid config")

// RunMode represents the operational mode of the node
type RunMode string

const (
	RunModeServe RunMode = "serve" // Wall clock, dev endpoints disabled (default)
	RunModeDev   RunMode = "dev"   // Manual clock, faucet and clock advance enabled
)

// Valid returns true if the RunMode is a known valid mode
func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

// IsDevMode returns true if the mode enables development behaviors
func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath           string  `yaml:"databasePath"    split_words:"true"`
	BlobPlugin             string  `yaml:"blobPlugin"      envconfig:"BEQUEST_DATABASE_BLOB_PLUGIN"`
	MetadataPlugin         string  `yaml:"metadataPlugin"  envconfig:"BEQUEST_DATABASE_METADATA_PLUGIN"`
	BindAddr               string  `yaml:"bindAddr"        split_words:"true"`
	ApiPort                uint    `yaml:"apiPort"         split_words:"true"`
	MetricsPort            uint    `yaml:"metricsPort"     split_words:"true"`
	ApiMaxConnectionsPerIp int     `yaml:"apiMaxConnectionsPerIp" split_words:"true"`
	RunMode                RunMode `yaml:"runMode"         envconfig:"BEQUEST_RUN_MODE"`
	ShutdownTimeout        string  `yaml:"shutdownTimeout" split_words:"true"`
	Tracing                bool    `yaml:"tracing"`
	TracingStdout          bool    `yaml:"tracingStdout"   split_words:"true"`
	// Genesis parameters, used only when the database holds no vault yet
	Deployer         string            `yaml:"deployer"`
	VaultAddress     string            `yaml:"vaultAddress"     split_words:"true"`
	InactivityPeriod string            `yaml:"inactivityPeriod" split_words:"true"`
	GenesisBalances  map[string]string `yaml:"genesisBalances"  split_words:"true"`
	// Client settings
	ApiUrl   string `yaml:"apiUrl"   split_words:"true"`
	KeyFile  string `yaml:"keyFile"  split_words:"true"`
	Decimals uint8  `yaml:"decimals"`
}

var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		DatabasePath:           ".bequest",
		BlobPlugin:             DefaultBlobPlugin,
		MetadataPlugin:         DefaultMetadataPlugin,
		BindAddr:               "0.0.0.0",
		ApiPort:                8080,
		MetricsPort:            12799,
		ApiMaxConnectionsPerIp: DefaultApiMaxConnectionsPerIp,
		RunMode:                RunModeServe,
		ShutdownTimeout:        DefaultShutdownTimeout,
		ApiUrl:                 DefaultApiUrl,
	}
}

// LoadConfig rebuilds the global config from defaults, then overlays the
// config file and the environment
func LoadConfig(configFile string) (*Config, error) {
	globalConfig = defaultConfig()
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.bequest/bequest.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".bequest", "bequest.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/bequest/bequest.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/bequest/bequest.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process("bequest", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	// Validate and default RunMode
	if !globalConfig.RunMode.Valid() {
		return nil, fmt.Errorf(
			"%w: runMode %q (must be 'serve' or 'dev')",
			ErrInvalidConfig,
			globalConfig.RunMode,
		)
	}
	if globalConfig.RunMode == "" {
		globalConfig.RunMode = RunModeServe
	}
	return globalConfig, nil
}

func loadConfigFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	err = yaml.Unmarshal(buf, &tempCfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	// If config section exists, use it for main config
	if tempCfg.Config != nil {
		// Overlay config values onto existing defaults
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		err = yaml.Unmarshal(configBytes, globalConfig)
		if err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process plugin configurations
	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			mergePluginSection(
				pluginConfig,
				"blob",
				tempCfg.Database.Blob,
				&globalConfig.BlobPlugin,
			)
		}
		if tempCfg.Database.Metadata != nil {
			mergePluginSection(
				pluginConfig,
				"metadata",
				tempCfg.Database.Metadata,
				&globalConfig.MetadataPlugin,
			)
		}
	}
	if len(pluginConfig) > 0 {
		err = plugin.ProcessConfig(pluginConfig)
		if err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

// mergePluginSection folds a database.<type> section into pluginConfig. A
// "plugin" key selects the plugin and every other map-valued key holds the
// options of the plugin it names.
func mergePluginSection(
	pluginConfig map[string]map[string]map[string]any,
	typeName string,
	section map[string]any,
	selected *string,
) {
	if pluginVal, exists := section["plugin"]; exists {
		if pluginName, ok := pluginVal.(string); ok {
			*selected = pluginName
			delete(section, "plugin")
		}
	}
	typeConfig := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			typeConfig[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			typeConfig[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				typeName,
				k,
				v,
			)
		}
	}
	// Merge with existing config instead of overwriting
	if pluginConfig[typeName] == nil {
		pluginConfig[typeName] = typeConfig
	} else {
		maps.Copy(pluginConfig[typeName], typeConfig)
	}
}

func GetConfig() *Config {
	return globalConfig
}

// ShutdownTimeoutDuration parses ShutdownTimeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return time.ParseDuration(DefaultShutdownTimeout)
	}
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: shutdownTimeout: %w", ErrInvalidConfig, err)
	}
	return d, nil
}

// InactivityPeriodDuration parses InactivityPeriod. Zero means the vault
// default.
func (c *Config) InactivityPeriodDuration() (time.Duration, error) {
	if c.InactivityPeriod == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.InactivityPeriod)
	if err != nil {
		return 0, fmt.Errorf("%w: inactivityPeriod: %w", ErrInvalidConfig, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf(
			"%w: inactivityPeriod must be positive, got %s",
			ErrInvalidConfig,
			c.InactivityPeriod,
		)
	}
	return d, nil
}

// DeployerAddress parses Deployer. An empty value yields the zero address.
func (c *Config) DeployerAddress() (common.Address, error) {
	return optionalAddress("deployer", c.Deployer)
}

// VaultAddressValue parses VaultAddress. An empty value yields the zero
// address, which lets genesis derive one.
func (c *Config) VaultAddressValue() (common.Address, error) {
	return optionalAddress("vaultAddress", c.VaultAddress)
}

// GenesisAccounts parses GenesisBalances. Amounts use Decimals.
func (c *Config) GenesisAccounts() (map[common.Address]uint64, error) {
	ret := make(map[common.Address]uint64, len(c.GenesisBalances))
	for addrStr, amountStr := range c.GenesisBalances {
		addr, err := optionalAddress("genesisBalances", addrStr)
		if err != nil {
			return nil, err
		}
		if addr == (common.Address{}) {
			return nil, fmt.Errorf(
				"%w: genesisBalances: zero address",
				ErrInvalidConfig,
			)
		}
		amount, err := custody.ParseAmount(amountStr, c.Decimals)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: genesisBalances[%s]: %w",
				ErrInvalidConfig,
				addrStr,
				err,
			)
		}
		ret[addr] = amount
	}
	return ret, nil
}

// ApiListenAddress returns the host:port the API server binds
func (c *Config) ApiListenAddress() string {
	return c.BindAddr + ":" + strconv.FormatUint(uint64(c.ApiPort), 10)
}

// MetricsListenAddress returns the host:port of the metrics listener
func (c *Config) MetricsListenAddress() string {
	return c.BindAddr + ":" + strconv.FormatUint(uint64(c.MetricsPort), 10)
}

func optionalAddress(field string, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf(
			"%w: %s: not a hex address: %q",
			ErrInvalidConfig,
			field,
			s,
		)
	}
	return common.HexToAddress(s), nil
}
