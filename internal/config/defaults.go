package config

// GetDefault returns the default configuration.
func GetDefault() *Config {
	return &Config{
		Thresholds: Thresholds{
			ProjectAgeDays: 14,
			MinAgeDays:     30,
			MinSizeMB:      100,
		},
		Safety: Safety{
			AlwaysConfirm:      false,
			DefaultPermanent:   false,
			MaxNoConfirm:       100,
			MaxSizeNoConfirmMB: 1024,
			SkipLockedFiles:    true,
			DryRunDefault:      false,
		},
		Cache: Cache{
			Enabled: true,
		},
		ExcludePatterns: []string{},
	}
}
