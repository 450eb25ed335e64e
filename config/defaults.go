package config

import "time"

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Engine:    DefaultEngineConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Publisher: DefaultPublisherConfig(),
		Retention: DefaultRetentionConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		ShutdownTimeout: 15 * time.Second,
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultStepTimeout: time.Hour,
		NonStrictTemplates: false,
		TimeoutSweepEvery:  30 * time.Second,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "pipeflow",
		Name:            "pipeflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "pipeflow",
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "pipeflow",
		SampleRate:   0.1,
	}
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Channel:        "pipeflow.events",
		InboundChannel: "pipeflow.inbound",
		BufferSize:    256,
		QueueCapacity: 1000,
		MaxRetries:    3,
		RetryInterval: 5 * time.Second,
	}
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:  false,
		MaxAge:   30 * 24 * time.Hour,
		Interval: time.Hour,
	}
}
