package config

import "time"

// DispatchConfig contains dispatch engine configuration.
type DispatchConfig struct {
	// DriverAcceptWindow is how long a driver has to accept an assignment
	// before it auto-rejects back to the pending pool.
	DriverAcceptWindow time.Duration `env:"DISPATCH_DRIVER_ACCEPT_WINDOW" envDefault:"2m"`

	// ProviderAcceptWindow is how long a service provider has to accept.
	ProviderAcceptWindow time.Duration `env:"DISPATCH_PROVIDER_ACCEPT_WINDOW" envDefault:"10m"`

	// PlatformVendorID identifies the platform operator's own vendor. Its
	// dispatchers may review unsuccessful reports for any vendor's jobs.
	PlatformVendorID string `env:"DISPATCH_PLATFORM_VENDOR_ID" envDefault:""`

	// ChannelPrefix prefixes the per-user Redis notification channels.
	ChannelPrefix string `env:"DISPATCH_CHANNEL_PREFIX" envDefault:"user:"`

	// RecoverOnStart controls whether pending acceptance windows are
	// re-armed from the job store during startup.
	RecoverOnStart bool `env:"DISPATCH_RECOVER_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to dispatch configuration values. Non-positive
// windows fall back to the built-in defaults.
func (c *DispatchConfig) Sanitize() {
	if c.DriverAcceptWindow < 0 {
		c.DriverAcceptWindow = 0
	}
	if c.ProviderAcceptWindow < 0 {
		c.ProviderAcceptWindow = 0
	}
}
