package config

import (
	"fmt"
	"os"

	"github.com/go-yaml/yaml"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

type Config struct {
	NodeInfo NodeInfo `yaml:"nodeInfo"`
	Server   Server   `yaml:"server"`
}

type NodeInfo struct {
	FQDN       string         `yaml:"fqdn"`
	PrivateKey string         `yaml:"privatekey"`
	Variant    domain.Variant `yaml:"variant"` // social, gizmo

	// ---
	CCID string
}

type Server struct {
	Listen         string  `yaml:"listen"`
	Store          string  `yaml:"store"` // badger, postgres
	BadgerPath     string  `yaml:"badgerPath"`
	PostgresDsn    string  `yaml:"postgresDsn"`
	RedisAddr      string  `yaml:"redisAddr"`
	RedisDB        int     `yaml:"redisDB"`
	MinioEndpoint  string  `yaml:"minioEndpoint"`
	MinioAccessKey string  `yaml:"minioAccessKey"`
	MinioSecretKey string  `yaml:"minioSecretKey"`
	MinioBucket    string  `yaml:"minioBucket"`
	MinioUseSSL    bool    `yaml:"minioUseSSL"`
	EnableTrace    bool    `yaml:"enableTrace"`
	TraceEndpoint  string  `yaml:"traceEndpoint"`
	RateLimit      float64 `yaml:"rateLimit"` // requests per second per client, 0 disables
	RateBurst      int     `yaml:"rateBurst"`
}

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := config.normalize(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) normalize() error {
	if c.NodeInfo.Variant == "" {
		c.NodeInfo.Variant = domain.VariantSocial
	}
	if !c.NodeInfo.Variant.Valid() {
		return fmt.Errorf("unknown variant %q", c.NodeInfo.Variant)
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	switch c.Server.Store {
	case "":
		c.Server.Store = StoreBadger
	case StoreBadger, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Server.Store)
	}
	if c.Server.Store == StorePostgres && c.Server.PostgresDsn == "" {
		return fmt.Errorf("postgresDsn is required for the postgres store")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		c.Server.RateBurst = int(c.Server.RateLimit) + 1
	}

	// the owner of the index is the identity of the node key
	if c.NodeInfo.PrivateKey != "" {
		ccid, err := parallel.PrivKeyToAddr(c.NodeInfo.PrivateKey, "con")
		if err != nil {
			return err
		}
		c.NodeInfo.CCID = ccid
	}
	return nil
}

// Domain returns the node settings the application layers consume.
func (c Config) Domain() domain.Config {
	return domain.Config{
		FQDN:       c.NodeInfo.FQDN,
		PrivateKey: c.NodeInfo.PrivateKey,
		Variant:    c.NodeInfo.Variant,
		CCID:       c.NodeInfo.CCID,
	}
}
