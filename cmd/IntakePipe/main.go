package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/api"
	"github.com/BTreeMap/IntakePipe/internal/cloudapi"
	"github.com/BTreeMap/IntakePipe/internal/leads"
	"github.com/BTreeMap/IntakePipe/internal/lockfile"
	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/IntakePipe/internal/util"
	"github.com/BTreeMap/IntakePipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lockfile and the default SQLite databases.
	DefaultStateDir = "/var/lib/intakepipe"
	// DefaultAppDBFileName is the lead archive and dedup database.
	DefaultAppDBFileName = "intakepipe.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// MemoryDSN keeps leads and dedup records in process memory.
	MemoryDSN = "memory"

	ProviderCloud     = "cloud"
	ProviderTwilio    = "twilio"
	ProviderWhatsmeow = "whatsmeow"
)

func main() {
	os.Exit(run())
}

func run() int {
	initializeLogger()
	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(config, flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		return 2
	}

	if needsStateLock(flags) {
		lock, err := lockfile.AcquireLock(flags.stateDir)
		if err != nil {
			var lockErr *lockfile.LockError
			if errors.As(err, &lockErr) {
				fmt.Fprintln(os.Stderr, lockErr.Error())
			}
			slog.Error("Failed to lock state directory", "error", err, "state_dir", flags.stateDir)
			return 1
		}
		defer lock.Release()
	}

	ctx := context.Background()
	svc, err := buildMessagingService(ctx, flags)
	if err != nil {
		slog.Error("Failed to configure messaging provider", "error", err, "provider", flags.provider)
		return 1
	}

	modules := api.Modules{
		Service:         svc,
		StoreOpts:       buildStoreOptions(flags),
		LeadSinkURL:     flags.leadSinkURL,
		LeadSinkTimeout: flags.leadSinkTimeout,
		SessionTTL:      flags.sessionTTL,
		UrgentTerms:     flags.urgentTerms,
	}
	slog.Info("Bootstrapping IntakePipe", "provider", flags.provider, "api_addr", flags.apiAddr,
		"db_dsn_set", flags.dbDSN != "", "lead_sink_set", flags.leadSinkURL != "", "session_ttl", flags.sessionTTL)
	if err := api.Run(ctx, modules, buildAPIOptions(flags)...); err != nil {
		slog.Error("IntakePipe failed to run", "error", err)
		return 1
	}
	slog.Info("IntakePipe exited successfully")
	return 0
}

// Config holds environment configuration
type Config struct {
	Provider         string
	WhatsAppToken    string
	PhoneNumberID    string
	VerifyToken      string
	AppSecret        string
	GraphAPIVersion  string
	LeadSinkURL      string
	LeadSinkTimeout  time.Duration
	TwilioAuthToken  string
	TwilioValidate   bool
	PublicBaseURL    string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	StateDir         string
	SessionTTL       time.Duration
	UrgentTerms      []string
	APIAddr          string
}

// Flags holds the effective configuration after command line overrides.
type Flags struct {
	provider        string
	whatsappToken   string
	phoneNumberID   string
	verifyToken     string
	appSecret       string
	graphAPIVersion string
	leadSinkURL     string
	leadSinkTimeout time.Duration
	twilioAuthToken string
	twilioValidate  bool
	publicBaseURL   string
	qrOutput        string
	numeric         bool
	stateDir        string
	waDBDSN         string
	dbDSN           string
	sessionTTL      time.Duration
	urgentTerms     []string
	apiAddr         string
}

// initializeLogger sets up structured logging, debug unless LOG_LEVEL says otherwise.
func initializeLogger() {
	level := slog.LevelDebug
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelDebug
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Provider:         strings.ToLower(os.Getenv("MESSAGING_PROVIDER")),
		WhatsAppToken:    os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID:    os.Getenv("PHONE_NUMBER_ID"),
		VerifyToken:      os.Getenv("VERIFY_TOKEN"),
		AppSecret:        os.Getenv("APP_SECRET"),
		GraphAPIVersion:  os.Getenv("GRAPH_API_VERSION"),
		LeadSinkURL:      os.Getenv("SHEETS_WEBHOOK_URL"),
		LeadSinkTimeout:  util.ParseDurationEnv("LEAD_SINK_TIMEOUT", leads.DefaultTimeout),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioValidate:   util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", true),
		PublicBaseURL:    os.Getenv("PUBLIC_BASE_URL"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: util.FirstEnv("DATABASE_DSN", "DATABASE_URL"),
		StateDir:         os.Getenv("INTAKEPIPE_STATE_DIR"),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", store.DefaultSessionTTL),
		UrgentTerms:      splitList(os.Getenv("URGENT_TERMS")),
		APIAddr:          os.Getenv("API_ADDR"),
	}

	if config.Provider == "" {
		config.Provider = ProviderCloud
	}
	if config.GraphAPIVersion == "" {
		config.GraphAPIVersion = cloudapi.DefaultGraphVersion
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKEPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		} else {
			config.APIAddr = api.DefaultServerAddress
		}
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_PROVIDER", config.Provider,
		"WHATSAPP_TOKEN_SET", config.WhatsAppToken != "",
		"PHONE_NUMBER_ID", config.PhoneNumberID,
		"VERIFY_TOKEN_SET", config.VerifyToken != "",
		"APP_SECRET_SET", config.AppSecret != "",
		"SHEETS_WEBHOOK_URL_SET", config.LeadSinkURL != "",
		"INTAKEPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr)
	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// splitList splits a comma-separated environment value, dropping blank items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseCommandLineFlags parses args on fs with environment values as defaults.
func parseCommandLineFlags(config Config, fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.provider, "provider", config.Provider, "messaging provider: cloud, twilio or whatsmeow (overrides $MESSAGING_PROVIDER)")
	fs.StringVar(&f.whatsappToken, "whatsapp-token", config.WhatsAppToken, "Cloud API access token (overrides $WHATSAPP_TOKEN)")
	fs.StringVar(&f.phoneNumberID, "phone-number-id", config.PhoneNumberID, "Cloud API phone number id (overrides $PHONE_NUMBER_ID)")
	fs.StringVar(&f.verifyToken, "verify-token", config.VerifyToken, "webhook verification token (overrides $VERIFY_TOKEN)")
	fs.StringVar(&f.appSecret, "app-secret", config.AppSecret, "app secret for webhook signatures (overrides $APP_SECRET)")
	fs.StringVar(&f.graphAPIVersion, "graph-api-version", config.GraphAPIVersion, "Graph API version (overrides $GRAPH_API_VERSION)")
	fs.StringVar(&f.leadSinkURL, "lead-sink-url", config.LeadSinkURL, "URL completed leads are posted to (overrides $SHEETS_WEBHOOK_URL)")
	fs.DurationVar(&f.leadSinkTimeout, "lead-sink-timeout", config.LeadSinkTimeout, "lead sink request timeout (overrides $LEAD_SINK_TIMEOUT)")
	fs.StringVar(&f.publicBaseURL, "public-base-url", config.PublicBaseURL, "external base URL used to validate Twilio signatures (overrides $PUBLIC_BASE_URL)")
	fs.StringVar(&f.qrOutput, "qr-output", "", "path to write the whatsmeow login QR code")
	fs.BoolVar(&f.numeric, "numeric-code", false, "print the whatsmeow pairing code instead of a QR code")
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory (overrides $INTAKEPIPE_STATE_DIR)")
	fs.StringVar(&f.waDBDSN, "whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.ApplicationDBDSN, "lead archive DSN, SQLite path, PostgreSQL URL or \"memory\" (overrides $DATABASE_DSN)")
	fs.DurationVar(&f.sessionTTL, "session-ttl", config.SessionTTL, "idle session eviction, 0 keeps sessions for the process lifetime (overrides $SESSION_TTL)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR / $PORT)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	f.provider = strings.ToLower(f.provider)
	f.twilioAuthToken = config.TwilioAuthToken
	f.twilioValidate = config.TwilioValidate
	f.urgentTerms = config.UrgentTerms

	// Follow a -state-dir override for DSNs that were only defaulted from the old state dir.
	if f.stateDir != config.StateDir {
		if f.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			f.dbDSN = filepath.Join(f.stateDir, DefaultAppDBFileName)
		}
		if f.waDBDSN == defaultWhatsAppDSN(config.StateDir) {
			f.waDBDSN = defaultWhatsAppDSN(f.stateDir)
		}
	}

	slog.Debug("flags parsed",
		"provider", f.provider,
		"stateDir", f.stateDir,
		"dbDSN_set", f.dbDSN != "",
		"waDBDSN_set", f.waDBDSN != "",
		"apiAddr", f.apiAddr,
		"sessionTTL", f.sessionTTL)
	return f, nil
}

// needsStateLock reports whether any configured database lives in a local file.
func needsStateLock(f Flags) bool {
	if f.dbDSN != MemoryDSN && store.DetectDSNType(f.dbDSN) == "sqlite3" {
		return true
	}
	return f.provider == ProviderWhatsmeow && store.DetectDSNType(f.waDBDSN) == "sqlite3"
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(f Flags) []store.Option {
	switch {
	case f.dbDSN == "" || f.dbDSN == MemoryDSN:
		slog.Debug("Using in-memory lead archive")
		return nil
	case store.DetectDSNType(f.dbDSN) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(f.dbDSN)}
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", f.dbDSN)
		return []store.Option{store.WithSQLiteDSN(f.dbDSN)}
	}
}

// buildWhatsAppOptions constructs whatsmeow configuration options
func buildWhatsAppOptions(f Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if f.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(f.qrOutput))
	}
	if f.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if f.waDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(f.waDBDSN))
	}
	return waOpts
}

// buildMessagingService creates the provider selected by -provider.
func buildMessagingService(ctx context.Context, f Flags) (messaging.Service, error) {
	switch f.provider {
	case ProviderCloud:
		client, err := cloudapi.NewClient(
			cloudapi.WithToken(f.whatsappToken),
			cloudapi.WithPhoneNumberID(f.phoneNumberID),
			cloudapi.WithGraphVersion(f.graphAPIVersion),
		)
		if err != nil {
			return nil, err
		}
		return messaging.NewCloudService(client), nil
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(twiliowhatsapp.WithAuthToken(f.twilioAuthToken))
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	case ProviderWhatsmeow:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(f)...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", f.provider)
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(f Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithAddr(f.apiAddr),
		api.WithVerifyToken(f.verifyToken),
	}
	if f.appSecret != "" {
		apiOpts = append(apiOpts, api.WithAppSecret(f.appSecret))
	}
	if f.provider == ProviderTwilio && f.twilioValidate && f.twilioAuthToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioSignatureValidation(f.twilioAuthToken))
	}
	if f.publicBaseURL != "" {
		apiOpts = append(apiOpts, api.WithPublicBaseURL(f.publicBaseURL))
	}
	return apiOpts
}
