package config

import "fmt"

// MaxAllowedCallDepth bounds the configurable nested call depth.
var MaxAllowedCallDepth = 1024

// Validate checks the configuration for values the executor cannot run with.
func (c *Config) Validate() error {
	if c.MaxCallDepth < 1 || c.MaxCallDepth > MaxAllowedCallDepth {
		return fmt.Errorf("config: MaxCallDepth must be within [1, %d], got %d", MaxAllowedCallDepth, c.MaxCallDepth)
	}
	if c.Gas.TxBase == 0 {
		return fmt.Errorf("config: gas.TxBase must be positive")
	}
	if _, err := c.Block.Context(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
