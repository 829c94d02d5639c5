package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"

	"github.com/outofforest/mtdcheck/mtd"
)

// Default geometry of the simulated flash.
const (
	DefaultBlockSize   = 512
	DefaultEraseSize   = 4096
	DefaultEraseBlocks = 32
)

// Config holds the geometry of the simulated flash.
type Config struct {
	BlockSize   uint32 `json:"block_size"`   //nolint:tagliatelle // snake_case for config file
	EraseSize   uint32 `json:"erase_size"`   //nolint:tagliatelle // snake_case for config file
	EraseBlocks uint32 `json:"erase_blocks"` //nolint:tagliatelle // snake_case for config file
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BlockSize:   DefaultBlockSize,
		EraseSize:   DefaultEraseSize,
		EraseBlocks: DefaultEraseBlocks,
	}
}

// Load reads configuration from the file, starting from defaults. Comments and trailing commas are allowed.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	data, err = hujson.Standardize(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "invalid config file %s", path)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config file %s", path)
	}

	return cfg, nil
}

// Validate checks that configuration describes usable flash.
func (c Config) Validate() error {
	if err := c.Geometry().Validate(); err != nil {
		return err
	}
	if c.BlockSize%4 != 0 {
		return errors.Errorf("block size %d is not a multiple of 4", c.BlockSize)
	}
	return nil
}

// Geometry returns flash geometry described by the configuration.
func (c Config) Geometry() mtd.Geometry {
	return mtd.Geometry{
		BlockSize:    c.BlockSize,
		EraseSize:    c.EraseSize,
		NEraseBlocks: c.EraseBlocks,
	}
}

// Size returns the byte size of the arena needed by the flash.
func (c Config) Size() int64 {
	return c.Geometry().Size()
}
