package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the listing response cache.  Methods
// lists the HTTP methods whose responses are stored; every other method is
// treated as a mutation that invalidates the namespace.  MaxBodyBytes caps
// what is written to Redis.
type CacheConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	MethodList   []string      `env:"METHODS" envSeparator:"," envDefault:"GET"`
	TTL          time.Duration `env:"TTL" envDefault:"30s"`
	Prefix       string        `env:"PREFIX" envDefault:"cache"`
	MaxBodyBytes int           `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	Methods map[string]bool
}

func (c *CacheConfig) normalize() {
	c.Methods = make(map[string]bool, len(c.MethodList))
	for _, m := range c.MethodList {
		m = strings.TrimSpace(strings.ToUpper(m))
		if m != "" {
			c.Methods[m] = true
		}
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "cache"
	}
}
