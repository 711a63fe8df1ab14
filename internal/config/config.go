package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

type Config struct {
	ListenAddr         string
	GeminiBaseURL      string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiTransport    string
	GeminiTemperature  float32
	RequestTimeout     time.Duration
	AnalysisTimeout    time.Duration
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	RetryMultiplier    float64
	MaxUploadBytes     int64
	SessionTTL         time.Duration
	MaxSessions        int
	CORSAllowedOrigins []string
	InitialAuthToken   string
	AuthSigningKey     string
	AppID              string
	LogLevel           string
}

type envConfig struct {
	ListenAddr             string   `env:"LISTEN_ADDR" envDefault:":8080"`
	GeminiBaseURL          string   `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiAPIKey           string   `env:"GEMINI_API_KEY"`
	GeminiModel            string   `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiTransport        string   `env:"GEMINI_TRANSPORT" envDefault:"rest"`
	GeminiTemperature      float64  `env:"GEMINI_TEMPERATURE" envDefault:"0.2"`
	RequestTimeoutSeconds  int      `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"60"`
	AnalysisTimeoutSeconds int      `env:"ANALYSIS_TIMEOUT_SECONDS" envDefault:"180"`
	RetryMaxAttempts       int      `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelayMS       int      `env:"RETRY_BASE_DELAY_MS" envDefault:"1000"`
	RetryMultiplier        float64  `env:"RETRY_MULTIPLIER" envDefault:"2"`
	MaxUploadBytes         int64    `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	SessionTTLMinutes      int      `env:"SESSION_TTL_MINUTES" envDefault:"120"`
	MaxSessions            int      `env:"MAX_SESSIONS" envDefault:"200"`
	CORSAllowedOrigins     []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	InitialAuthToken       string   `env:"INITIAL_AUTH_TOKEN"`
	AuthSigningKey         string   `env:"AUTH_SIGNING_KEY"`
	AppID                  string   `env:"APP_ID" envDefault:"copydesk"`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	origins := make([]string, 0, len(raw.CORSAllowedOrigins))
	for _, o := range raw.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		ListenAddr:         strings.TrimSpace(raw.ListenAddr),
		GeminiBaseURL:      strings.TrimRight(strings.TrimSpace(raw.GeminiBaseURL), "/"),
		GeminiAPIKey:       strings.TrimSpace(raw.GeminiAPIKey),
		GeminiModel:        strings.TrimSpace(raw.GeminiModel),
		GeminiTransport:    strings.ToLower(strings.TrimSpace(raw.GeminiTransport)),
		GeminiTemperature:  float32(raw.GeminiTemperature),
		RequestTimeout:     time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		AnalysisTimeout:    time.Duration(raw.AnalysisTimeoutSeconds) * time.Second,
		RetryMaxAttempts:   raw.RetryMaxAttempts,
		RetryBaseDelay:     time.Duration(raw.RetryBaseDelayMS) * time.Millisecond,
		RetryMultiplier:    raw.RetryMultiplier,
		MaxUploadBytes:     raw.MaxUploadBytes,
		SessionTTL:         time.Duration(raw.SessionTTLMinutes) * time.Minute,
		MaxSessions:        raw.MaxSessions,
		CORSAllowedOrigins: origins,
		InitialAuthToken:   strings.TrimSpace(raw.InitialAuthToken),
		AuthSigningKey:     strings.TrimSpace(raw.AuthSigningKey),
		AppID:              strings.TrimSpace(raw.AppID),
		LogLevel:           strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.GeminiBaseURL == "" {
		return errors.New("GEMINI_BASE_URL must not be empty")
	}
	if c.GeminiModel == "" {
		return errors.New("GEMINI_MODEL must not be empty")
	}
	switch c.GeminiTransport {
	case TransportREST:
	case TransportSDK:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when GEMINI_TRANSPORT=sdk")
		}
	default:
		return fmt.Errorf("GEMINI_TRANSPORT must be %q or %q", TransportREST, TransportSDK)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.AnalysisTimeout <= 0 {
		return errors.New("ANALYSIS_TIMEOUT_SECONDS must be > 0")
	}
	if c.RetryMaxAttempts < 1 {
		return errors.New("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.RetryBaseDelay < 0 {
		return errors.New("RETRY_BASE_DELAY_MS must be >= 0")
	}
	if c.RetryMultiplier < 1 {
		return errors.New("RETRY_MULTIPLIER must be >= 1")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.GeminiTemperature < 0 || c.GeminiTemperature > 2 {
		return errors.New("GEMINI_TEMPERATURE must be within [0, 2]")
	}
	if c.SessionTTL < 0 {
		return errors.New("SESSION_TTL_MINUTES must be >= 0")
	}
	// A session must outlive the analysis running in it.
	if c.SessionTTL > 0 && c.SessionTTL <= c.AnalysisTimeout {
		return fmt.Errorf("SESSION_TTL_MINUTES (%s) must exceed ANALYSIS_TIMEOUT_SECONDS (%s)", c.SessionTTL, c.AnalysisTimeout)
	}
	if c.MaxSessions < 0 {
		return errors.New("MAX_SESSIONS must be >= 0")
	}
	return nil
}
