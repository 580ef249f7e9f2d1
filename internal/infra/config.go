package infra

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"booksrare_go/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// StrategyConfig declares one execution strategy to register at boot.
type StrategyConfig struct {
	Kind           string `yaml:"kind" validate:"required,oneof=standard any_item private_sale"`
	Address        string `yaml:"address" validate:"required,eth_addr"`
	ProtocolFeeBps uint64 `yaml:"protocol_fee_bps" validate:"lte=10000"`
}

// Asset standards a paper collection can be minted as.
const (
	StandardERC721  = "erc721"
	StandardERC1155 = "erc1155"
	StandardLegacy  = "legacy"
)

// PaperToken is one token minted into a paper collection at boot. Amount only applies to
// erc1155 and defaults to 1.
type PaperToken struct {
	ID     string `yaml:"id" validate:"required,number"`
	Holder string `yaml:"holder" validate:"required,eth_addr"`
	Amount uint64 `yaml:"amount"`
}

// PaperCollection declares an in-memory collection. A royalty receiver turns an erc721
// collection into one that reports its own royalties.
type PaperCollection struct {
	Address         string       `yaml:"address" validate:"required,eth_addr"`
	Standard        string       `yaml:"standard" validate:"required,oneof=erc721 erc1155 legacy"`
	Owner           string       `yaml:"owner" validate:"omitempty,eth_addr"`
	RoyaltyReceiver string       `yaml:"royalty_receiver" validate:"omitempty,eth_addr"`
	RoyaltyBps      uint64       `yaml:"royalty_bps" validate:"lte=10000"`
	Tokens          []PaperToken `yaml:"tokens" validate:"dive"`
}

// PaperBalance funds account with Amount (in ether units) of currency.
type PaperBalance struct {
	Currency string `yaml:"currency" validate:"required,eth_addr"`
	Account  string `yaml:"account" validate:"required,eth_addr"`
	Amount   string `yaml:"amount" validate:"required"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 배포별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name" validate:"required"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		DomainName        string `yaml:"domain_name" validate:"required"`
		DomainVersion     string `yaml:"domain_version" validate:"required"`
		ChainID           uint64 `yaml:"chain_id" validate:"required"`
		VerifyingContract string `yaml:"verifying_contract" validate:"required,eth_addr"`
		FeeRecipient      string `yaml:"fee_recipient" validate:"required,eth_addr"`
		Governance        string `yaml:"governance" validate:"required,eth_addr"`
		InboxSize         int    `yaml:"inbox_size" validate:"gte=0"`
	} `yaml:"exchange"`

	Royalty struct {
		FeeLimitBps uint64 `yaml:"fee_limit_bps" validate:"lte=9500"`
	} `yaml:"royalty"`

	Strategies []StrategyConfig `yaml:"strategies" validate:"dive"`
	Currencies []string         `yaml:"currencies" validate:"dive,eth_addr"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Feed struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
	} `yaml:"feed"`

	Logging struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	// Paper seeds the in-memory asset and currency ledgers.
	Paper struct {
		Collections []PaperCollection `yaml:"collections" validate:"dive"`
		Balances    []PaperBalance    `yaml:"balances" validate:"dive"`
	} `yaml:"paper"`
}

// envOverrides lists the values a deployment may override without editing the YAML.
type envOverrides struct {
	ChainID      uint64 `env:"BOOKSRARE_CHAIN_ID"`
	FeeRecipient string `env:"BOOKSRARE_FEE_RECIPIENT"`
	StoragePath  string `env:"BOOKSRARE_STORAGE_PATH"`
	FeedAddr     string `env:"BOOKSRARE_FEED_ADDR"`
	LogLevel     string `env:"BOOKSRARE_LOG_LEVEL"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "path", Err: err}
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, applies environment overrides and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.DomainName == "" {
		c.Exchange.DomainName = "BooksRareExchange"
	}
	if c.Exchange.DomainVersion == "" {
		c.Exchange.DomainVersion = "1"
	}
	if c.Exchange.InboxSize == 0 {
		c.Exchange.InboxSize = 1024
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ConfigError{
				Field: fe.Namespace(),
				Err:   fmt.Errorf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &domain.ConfigError{Field: "config", Err: err}
	}

	seen := make(map[common.Address]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		addr := common.HexToAddress(s.Address)
		if seen[addr] {
			return &domain.ConfigError{
				Field: fmt.Sprintf("Config.Strategies[%d].Address", i),
				Err:   fmt.Errorf("duplicate strategy address %s", addr.Hex()),
			}
		}
		seen[addr] = true
	}

	collections := make(map[common.Address]bool, len(c.Paper.Collections))
	for i, pc := range c.Paper.Collections {
		addr := common.HexToAddress(pc.Address)
		if collections[addr] {
			return &domain.ConfigError{
				Field: fmt.Sprintf("Config.Paper.Collections[%d].Address", i),
				Err:   fmt.Errorf("duplicate collection address %s", addr.Hex()),
			}
		}
		collections[addr] = true
	}
	for i, pb := range c.Paper.Balances {
		if _, err := ParseEther(pb.Amount); err != nil {
			return &domain.ConfigError{Field: fmt.Sprintf("Config.Paper.Balances[%d].Amount", i), Err: err}
		}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return &domain.ConfigError{Field: "env", Err: err}
	}
	if o.ChainID != 0 {
		cfg.Exchange.ChainID = o.ChainID
	}
	if o.FeeRecipient != "" {
		cfg.Exchange.FeeRecipient = o.FeeRecipient
	}
	if o.StoragePath != "" {
		cfg.Storage.Path = o.StoragePath
	}
	if o.FeedAddr != "" {
		cfg.Feed.Addr = o.FeedAddr
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}

// ChainID returns the configured chain id as a big integer.
func (c *Config) ChainID() *big.Int {
	return new(big.Int).SetUint64(c.Exchange.ChainID)
}
