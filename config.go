package hephaistos

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const mib = 1 << 20

// Config holds the instance, device and swapchain options. It maps to a TOML
// document; every field has a usable default from DefaultConfig.
type Config struct {
	AppName          string   `toml:"app_name"`
	EngineName       string   `toml:"engine_name"`
	Validation       bool     `toml:"validation"`
	ValidationLayers []string `toml:"validation_layers"`
	// DeviceExtensions are enabled when the adapter supports them.
	DeviceExtensions []string `toml:"device_extensions"`
	// SwapchainImages is the lower bound on the swapchain image count.
	SwapchainImages uint32 `toml:"swapchain_images"`
	PreferMailbox   bool   `toml:"prefer_mailbox"`
	DeviceBlockMiB  uint64 `toml:"device_block_mib"`
	HostBlockMiB    uint64 `toml:"host_block_mib"`
	LogLevel        string `toml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		AppName:          "hephaistos",
		EngineName:       "hephaistos",
		ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},
		SwapchainImages:  3,
		PreferMailbox:    true,
		DeviceBlockMiB:   256,
		HostBlockMiB:     64,
		LogLevel:         "info",
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML on top of DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.SwapchainImages == 0 {
		return errors.New("swapchain_images must be at least 1")
	}
	if c.DeviceBlockMiB == 0 || c.HostBlockMiB == 0 {
		return errors.New("allocator block sizes must be non-zero")
	}
	return nil
}

func (c Config) deviceBlockSize() uint64 {
	return c.DeviceBlockMiB * mib
}

func (c Config) hostBlockSize() uint64 {
	return c.HostBlockMiB * mib
}
