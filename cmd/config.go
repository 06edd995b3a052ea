package main

import "time"

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	TokenDuration        time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	HandshakeTimeout     time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=5s"`
	HeartbeatRequest     time.Duration `env:"HEARTBEAT_REQUEST_INTERVAL,default=15s"`
	HeartbeatSweep       time.Duration `env:"HEARTBEAT_SWEEP_INTERVAL,default=30s"`
	HeartbeatIdle        time.Duration `env:"HEARTBEAT_IDLE_TIMEOUT,default=60s"`
	BreakerFailures      int           `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerSuccesses     int           `env:"BREAKER_SUCCESS_THRESHOLD,default=2"`
	BreakerOpenTimeout   time.Duration `env:"BREAKER_OPEN_TIMEOUT,default=10s"`
	BreakerCallTimeout   time.Duration `env:"BREAKER_CALL_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=5s"`
	TelemetryInterval    time.Duration `env:"TELEMETRY_INTERVAL,default=30s"`
	DebugPort            *int          `env:"DEBUG_PORT"`
}
