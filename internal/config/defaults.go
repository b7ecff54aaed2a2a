package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Port:       3000,
			StaticDir:  "public",
			MaxClients: 100,
			SendBuffer: 256,
		},
		WhatsApp: WhatsAppConfig{
			SessionDB:                "~/.whatsbridge/session.db",
			PrintQR:                  true,
			ReinitializeOnDisconnect: true,
			ReinitializeDelaySeconds: 5,
			LookupTimeoutSeconds:     10,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:        3,
			RetryDelayMillis:   1000,
			RateLimitPerMinute: 30,
			RateLimitBurst:     5,
		},
		Inbox: InboxConfig{
			IncludeOutgoingEchoes: false,
			QueueSize:             256,
		},
		Media: MediaConfig{
			MaxBytes:               16 << 20,
			DownloadTimeoutSeconds: 60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
