package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "PARLEY_LISTEN_ADDR"
	envVarPublicBaseURL   = "PARLEY_PUBLIC_BASE_URL"
	envVarMode            = "PARLEY_MODE"
	envVarLogFormat       = "PARLEY_LOG_FORMAT"
	envVarLogLevel        = "PARLEY_LOG_LEVEL"
	envVarShutdownTimeout = "PARLEY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Persistence.
	envVarMongoURI            = "MONGO_URI"
	envVarMongoDatabase       = "MONGO_DATABASE"
	envVarMongoConnectTimeout = "MONGO_CONNECT_TIMEOUT"

	// Auth.
	envVarJWTSecret  = "JWT_SECRET"
	envVarJWTTTL     = "JWT_TTL"
	envVarBcryptCost = "BCRYPT_COST"

	// WebSocket hardening shared by both realtime namespaces.
	envVarWSIdleTimeout       = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval      = "WS_PING_INTERVAL"
	envVarWSSendBuffer        = "WS_SEND_BUFFER"
	envVarMaxWSMessageBytes   = "MAX_WS_MESSAGE_BYTES"
	envVarMaxWSMessagesPerSec = "MAX_WS_MESSAGES_PER_SECOND"

	// coturn TURN REST (ephemeral) credentials for the /webrtc/ice endpoint.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"

	DefaultListenAddr          = "127.0.0.1:8080"
	DefaultShutdownTimeout     = 15 * time.Second
	DefaultMode           Mode = ModeDev

	DefaultMongoURI            = "mongodb://localhost:27017"
	DefaultMongoDatabase       = "parley"
	DefaultMongoConnectTimeout = 10 * time.Second

	DefaultJWTTTL     = 24 * time.Hour
	DefaultBcryptCost = 10

	DefaultWSIdleTimeout       = 60 * time.Second
	DefaultWSPingInterval      = 25 * time.Second
	DefaultWSSendBuffer        = 64
	DefaultMaxWSMessageBytes   = 64 * 1024
	DefaultMaxWSMessagesPerSec = 50

	DefaultTURNRESTTTLSeconds     = 600
	DefaultTURNRESTUsernamePrefix = "parley"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

func parseMode(raw string) (Mode, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case string(ModeDev):
		return ModeDev, nil
	case string(ModeProd):
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TurnRESTConfig carries the knobs for minting coturn-compatible short-lived
// TURN credentials on /webrtc/ice responses.
type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	WSIdleTimeout       time.Duration
	WSPingInterval      time.Duration
	WSSendBuffer        int
	MaxWSMessageBytes   int64
	MaxWSMessagesPerSec int

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	iceConfigErr error
}

// ICEConfigError reports a deferred ICE configuration problem. The server still
// starts (blogs/chat don't need ICE), but /readyz and /webrtc/ice surface it.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")

	mongoURI := envOrDefault(lookup, envVarMongoURI, DefaultMongoURI)
	mongoDatabase := envOrDefault(lookup, envVarMongoDatabase, DefaultMongoDatabase)
	jwtSecret := envOrDefault(lookup, envVarJWTSecret, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	mongoConnectTimeout, err := envDurationOrDefault(lookup, envVarMongoConnectTimeout, DefaultMongoConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	jwtTTL, err := envDurationOrDefault(lookup, envVarJWTTTL, DefaultJWTTTL)
	if err != nil {
		return Config{}, err
	}
	bcryptCost, err := envIntOrDefault(lookup, envVarBcryptCost, DefaultBcryptCost)
	if err != nil {
		return Config{}, err
	}

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	wsSendBuffer, err := envIntOrDefault(lookup, envVarWSSendBuffer, DefaultWSSendBuffer)
	if err != nil {
		return Config{}, err
	}
	maxWSMessageBytes, err := envInt64OrDefault(lookup, envVarMaxWSMessageBytes, DefaultMaxWSMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxWSMessagesPerSec, err := envIntOrDefault(lookup, envVarMaxWSMessagesPerSec, DefaultMaxWSMessagesPerSec)
	if err != nil {
		return Config{}, err
	}

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTTTLSeconds, err := envInt64OrDefault(lookup, envVarTURNRESTTTLSeconds, DefaultTURNRESTTTLSeconds)
	if err != nil {
		return Config{}, err
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)

	fs := flag.NewFlagSet("parley-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+")")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL (optional; used for logging)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.StringVar(&mongoURI, "mongo-uri", mongoURI, "MongoDB connection URI (env "+envVarMongoURI+")")
	fs.StringVar(&mongoDatabase, "mongo-database", mongoDatabase, "MongoDB database name (env "+envVarMongoDatabase+")")
	fs.DurationVar(&mongoConnectTimeout, "mongo-connect-timeout", mongoConnectTimeout, "MongoDB connect/ping timeout (env "+envVarMongoConnectTimeout+")")

	fs.StringVar(&jwtSecret, "jwt-secret", jwtSecret, "HS256 secret for access tokens (env "+envVarJWTSecret+")")
	fs.DurationVar(&jwtTTL, "jwt-ttl", jwtTTL, "Access token lifetime (env "+envVarJWTTTL+")")
	fs.IntVar(&bcryptCost, "bcrypt-cost", bcryptCost, "bcrypt cost for password hashing (env "+envVarBcryptCost+")")

	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close idle WebSocket connections after this duration (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Send ping frames at this interval (must be < --ws-idle-timeout; env "+envVarWSPingInterval+")")
	fs.IntVar(&wsSendBuffer, "ws-send-buffer", wsSendBuffer, "Outbound message buffer per WebSocket connection (env "+envVarWSSendBuffer+")")
	fs.Int64Var(&maxWSMessageBytes, "max-ws-message-bytes", maxWSMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxWSMessageBytes+")")
	fs.IntVar(&maxWSMessagesPerSec, "max-ws-messages-per-second", maxWSMessagesPerSec, "Max inbound WebSocket messages per second per connection (env "+envVarMaxWSMessagesPerSec+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "Static TURN username (env "+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "Static TURN credential (env "+envTurnCredential+")")
	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "TURN REST shared secret (env "+envVarTURNRESTSharedSecret+")")
	fs.Int64Var(&turnRESTTTLSeconds, "turn-rest-ttl-seconds", turnRESTTTLSeconds, "TURN REST credential TTL seconds (env "+envVarTURNRESTTTLSeconds+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix (env "+envVarTURNRESTUsernamePrefix+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if strings.TrimSpace(mongoURI) == "" {
		return Config{}, fmt.Errorf("%s/--mongo-uri must not be empty", envVarMongoURI)
	}
	if strings.TrimSpace(mongoDatabase) == "" {
		return Config{}, fmt.Errorf("%s/--mongo-database must not be empty", envVarMongoDatabase)
	}
	if mongoConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--mongo-connect-timeout must be > 0", envVarMongoConnectTimeout)
	}
	if strings.TrimSpace(jwtSecret) == "" {
		if mode == ModeProd {
			return Config{}, fmt.Errorf("%s/--jwt-secret is required in prod mode", envVarJWTSecret)
		}
		jwtSecret = "dev_jwt_secret"
	}
	if jwtTTL <= 0 {
		return Config{}, fmt.Errorf("%s/--jwt-ttl must be > 0", envVarJWTTTL)
	}
	if bcryptCost < 4 || bcryptCost > 31 {
		return Config{}, fmt.Errorf("%s/--bcrypt-cost must be in [4, 31]", envVarBcryptCost)
	}
	if wsIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-idle-timeout must be > 0", envVarWSIdleTimeout)
	}
	if wsPingInterval <= 0 || wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be > 0 and < the idle timeout", envVarWSPingInterval)
	}
	if wsSendBuffer <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-send-buffer must be > 0", envVarWSSendBuffer)
	}
	if maxWSMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-ws-message-bytes must be > 0", envVarMaxWSMessageBytes)
	}
	if maxWSMessagesPerSec <= 0 {
		return Config{}, fmt.Errorf("%s/--max-ws-messages-per-second must be > 0", envVarMaxWSMessagesPerSec)
	}
	if turnRESTSharedSecret != "" && turnRESTTTLSeconds <= 0 {
		return Config{}, fmt.Errorf("%s/--turn-rest-ttl-seconds must be > 0 when TURN REST is enabled", envVarTURNRESTTTLSeconds)
	}

	allowedOrigins := splitCommaList(allowedOriginsStr)

	// ICE misconfiguration is deferred rather than fatal: the CRUD/chat surfaces
	// don't depend on it, and /readyz reports the error.
	iceServers, iceErr := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if iceErr != nil {
		iceServers = nil
	}

	return Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,

		MongoURI:            mongoURI,
		MongoDatabase:       mongoDatabase,
		MongoConnectTimeout: mongoConnectTimeout,

		JWTSecret:  jwtSecret,
		JWTTTL:     jwtTTL,
		BcryptCost: bcryptCost,

		WSIdleTimeout:       wsIdleTimeout,
		WSPingInterval:      wsPingInterval,
		WSSendBuffer:        wsSendBuffer,
		MaxWSMessageBytes:   maxWSMessageBytes,
		MaxWSMessagesPerSec: maxWSMessagesPerSec,

		ICEServers: iceServers,
		TURNREST: TurnRESTConfig{
			SharedSecret:   turnRESTSharedSecret,
			TTLSeconds:     turnRESTTTLSeconds,
			UsernamePrefix: turnRESTUsernamePrefix,
		},

		iceConfigErr: iceErr,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text or json)", cfg.LogFormat)
	}
	return slog.New(handler), nil
}

func defaultLogFormatForMode(mode string) string {
	if strings.TrimSpace(strings.ToLower(mode)) == string(ModeProd) {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if strings.TrimSpace(strings.ToLower(mode)) == string(ModeProd) {
		return "info"
	}
	return "debug"
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func envOrDefault(lookup func(string) (string, bool), key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func envIntOrDefault(lookup func(string) (string, bool), key string, def int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, def int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitCommaList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
