// Package config provides configuration structures and loading logic for the
// agora service.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/agoradao/agora/pkg/domain"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds the global configuration for the service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Storage    StorageConfig    `yaml:"storage"`
	Events     EventsConfig     `yaml:"events"`
	Governance GovernanceConfig `yaml:"governance"`
	Treasury   TreasuryConfig   `yaml:"treasury"`
	Roles      RolesConfig      `yaml:"roles"`
	Identities IdentitiesConfig `yaml:"identities"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Address         string          `yaml:"address"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	TLS             *TLSConfig      `yaml:"tls,omitempty"`
}

// RateLimitConfig throttles mutating requests per caller. A zero rate
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
}

// StorageConfig selects the store implementation.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// EventsConfig configures committed-event delivery. An empty NATSURL keeps
// delivery to the log only.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// GovernanceConfig seeds the governance singleton of a fresh store.
type GovernanceConfig struct {
	StandardPeriod        time.Duration `yaml:"standard_period"`
	EmergencyPeriod       time.Duration `yaml:"emergency_period"`
	BaseQuorumBps         uint32        `yaml:"base_quorum_bps"`
	MinDeliberationPeriod time.Duration `yaml:"min_deliberation_period"`
	MaxActiveProposals    uint32        `yaml:"max_active_proposals"`
}

// TreasuryConfig holds the price settings.
type TreasuryConfig struct {
	// InitialPrice is an 18-decimal fixed-point integer.
	InitialPrice string `yaml:"initial_price"`
	// PriceFile, when set, is watched for price updates.
	PriceFile string `yaml:"price_file"`
}

// RolesConfig lists the bootstrap identities.
type RolesConfig struct {
	Admin        string   `yaml:"admin"`
	BoardMembers []string `yaml:"board_members"`
}

// IdentitiesConfig names the addresses the components act as.
type IdentitiesConfig struct {
	Treasury   string `yaml:"treasury"`
	Governance string `yaml:"governance"`
}

// Default returns the configuration used before any file or environment
// overrides are applied.
func Default() *Config {
	gov := domain.DefaultGovernanceConfig()
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{ServiceName: "agora"},
		Storage:   StorageConfig{Driver: DriverMemory},
		Governance: GovernanceConfig{
			StandardPeriod:        gov.StandardPeriod,
			EmergencyPeriod:       gov.EmergencyPeriod,
			BaseQuorumBps:         gov.BaseQuorumBps,
			MinDeliberationPeriod: gov.MinDeliberationPeriod,
			MaxActiveProposals:    gov.MaxActiveProposals,
		},
		Treasury: TreasuryConfig{InitialPrice: "1000000000000000000"},
		Identities: IdentitiesConfig{
			Treasury:   "0x0000000000000000000000000000000000007e01",
			Governance: "0x0000000000000000000000000000000000007e02",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("AGORA_SERVER_ADDRESS"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("AGORA_RATE_LIMIT_RPS"); val != "" {
		rps, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("AGORA_RATE_LIMIT_RPS: %w", err)
		}
		cfg.Server.RateLimit.RequestsPerSecond = rps
	}

	if val := os.Getenv("AGORA_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("AGORA_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("AGORA_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("AGORA_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("AGORA_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("AGORA_STORAGE_DRIVER"); val != "" {
		cfg.Storage.Driver = val
	}
	if val := os.Getenv("AGORA_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}

	if val := os.Getenv("AGORA_NATS_URL"); val != "" {
		cfg.Events.NATSURL = val
	}

	if val := os.Getenv("AGORA_INITIAL_PRICE"); val != "" {
		cfg.Treasury.InitialPrice = val
	}
	if val := os.Getenv("AGORA_PRICE_FILE"); val != "" {
		cfg.Treasury.PriceFile = val
	}

	if val := os.Getenv("AGORA_ADMIN"); val != "" {
		cfg.Roles.Admin = val
	}
	if val := os.Getenv("AGORA_BOARD_MEMBERS"); val != "" {
		var members []string
		for _, m := range strings.Split(val, ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		cfg.Roles.BoardMembers = members
	}
	return nil
}

// Validate performs validation of every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration: %w", err)
	}
	if err := c.Governance.Validate(); err != nil {
		return fmt.Errorf("governance configuration: %w", err)
	}
	if err := c.Treasury.Validate(); err != nil {
		return fmt.Errorf("treasury configuration: %w", err)
	}
	if err := c.Roles.Validate(); err != nil {
		return fmt.Errorf("roles configuration: %w", err)
	}
	if err := c.Identities.Validate(); err != nil {
		return fmt.Errorf("identities configuration: %w", err)
	}
	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return NewConfigValidationError("rate_limit.requests_per_second", c.RateLimit.RequestsPerSecond, "must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return NewConfigValidationError("rate_limit.burst", c.RateLimit.Burst, "must be at least 1 when rate limiting is enabled")
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("TLS configuration: %w", err)
		}
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "":
		c.Format = "json"
	case "json", "text":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: json, text", c.Format)
	}
	return nil
}

// Validate performs validation of storage configuration.
func (c *StorageConfig) Validate() error {
	driver := strings.TrimSpace(strings.ToLower(c.Driver))
	switch driver {
	case "":
		c.Driver = DriverMemory
	case DriverMemory:
		c.Driver = driver
	case DriverSQLite:
		c.Driver = driver
		if strings.TrimSpace(c.Path) == "" {
			return NewConfigMissingError("storage.path").
				WithSuggestion("Set storage.path to the sqlite database file")
		}
	default:
		return NewConfigValidationError("storage.driver", c.Driver, "unsupported driver").
			WithSuggestion("Use memory or sqlite")
	}
	return nil
}

// Domain converts the section to the governance configuration.
func (c GovernanceConfig) Domain() domain.GovernanceConfig {
	return domain.GovernanceConfig{
		StandardPeriod:        c.StandardPeriod,
		EmergencyPeriod:       c.EmergencyPeriod,
		BaseQuorumBps:         c.BaseQuorumBps,
		MinDeliberationPeriod: c.MinDeliberationPeriod,
		MaxActiveProposals:    c.MaxActiveProposals,
	}
}

// Validate applies the governance bounds.
func (c *GovernanceConfig) Validate() error {
	return c.Domain().Validate()
}

// Price parses the initial price.
func (c TreasuryConfig) Price() (*big.Int, error) {
	price, err := domain.ParseAmount(c.InitialPrice)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, domain.ErrZeroValue
	}
	return price, nil
}

// Validate performs validation of treasury configuration.
func (c *TreasuryConfig) Validate() error {
	if _, err := c.Price(); err != nil {
		return NewConfigValidationError("treasury.initial_price", c.InitialPrice, err.Error())
	}
	return nil
}

// AdminAddress returns the parsed admin identity.
func (c RolesConfig) AdminAddress() common.Address {
	return common.HexToAddress(c.Admin)
}

// BoardAddresses returns the parsed bootstrap board.
func (c RolesConfig) BoardAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.BoardMembers))
	for _, m := range c.BoardMembers {
		out = append(out, common.HexToAddress(m))
	}
	return out
}

// Validate performs validation of roles configuration.
func (c *RolesConfig) Validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return NewConfigMissingError("roles.admin").
			WithSuggestion("Set roles.admin or AGORA_ADMIN to the administrator address")
	}
	if err := validateAddress("roles.admin", c.Admin); err != nil {
		return err
	}
	for i, m := range c.BoardMembers {
		if err := validateAddress(fmt.Sprintf("roles.board_members[%d]", i), m); err != nil {
			return err
		}
	}
	return nil
}

// TreasuryAddress returns the treasury identity.
func (c IdentitiesConfig) TreasuryAddress() common.Address {
	return common.HexToAddress(c.Treasury)
}

// GovernanceAddress returns the governance identity.
func (c IdentitiesConfig) GovernanceAddress() common.Address {
	return common.HexToAddress(c.Governance)
}

// Validate performs validation of identities configuration.
func (c *IdentitiesConfig) Validate() error {
	if err := validateAddress("identities.treasury", c.Treasury); err != nil {
		return err
	}
	if err := validateAddress("identities.governance", c.Governance); err != nil {
		return err
	}
	if strings.EqualFold(c.Treasury, c.Governance) {
		return NewConfigValidationError("identities", c.Treasury, "treasury and governance must differ")
	}
	return nil
}

func validateAddress(field, value string) error {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return NewConfigValidationError(field, value, "not a hex address")
	}
	if domain.IsZeroAddress(common.HexToAddress(value)) {
		return NewConfigValidationError(field, value, "must not be the zero address")
	}
	return nil
}
