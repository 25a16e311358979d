package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Environment struct {
	AppEnv        string
	IsDevelopment bool
	Port          string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	JWTSecret         string
	SessionCookieName string
	SessionTTL        time.Duration
	Domain            string
	CookieSecure      bool
	CORSOrigins       []string

	FirebaseProjectID string

	CloudinaryURL       string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	LocalStorageDir     string
	PublicBaseURL       string

	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPassword string

	RedisURL          string
	OTPTTL            time.Duration
	OTPResendInterval time.Duration

	ModelServerURL         string
	DetectorThresholds     string
	DetectorMaxConcurrency int
	MaxUploadBytes         int64

	StaticDir string
	LogLevel  string
	LogFormat string
}

// LoadDotenv reads .env outside production. A missing file is not an error.
func LoadDotenv() {
	if strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		return
	}
	if err := godotenv.Load(); err != nil {
		Log.Debugf("config: .env not loaded: %v", err)
	}
}

// LoadEnvironment reads the process environment through viper and fills Env.
func LoadEnvironment() (Environment, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	appEnv := strings.ToLower(v.GetString("APP_ENV"))
	isDev := appEnv != "production"

	env := Environment{
		AppEnv:        appEnv,
		IsDevelopment: isDev,
		Port:          v.GetString("PORT"),

		DatabaseURL:       v.GetString("DB_URL"),
		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),

		JWTSecret:         v.GetString("JWT_SECRET_KEY"),
		SessionCookieName: v.GetString("SESSION_COOKIE_NAME"),
		SessionTTL:        v.GetDuration("SESSION_TTL"),
		Domain:            v.GetString("COOKIE_DOMAIN"),
		CookieSecure:      !isDev,
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),

		FirebaseProjectID: v.GetString("FIREBASE_PROJECT_ID"),

		CloudinaryURL:       v.GetString("CLOUDINARY_URL"),
		CloudinaryCloudName: v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: v.GetString("CLOUDINARY_API_SECRET"),
		LocalStorageDir:     v.GetString("LOCAL_STORAGE_DIR"),
		PublicBaseURL:       strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),

		EmailHost:     v.GetString("EMAIL_HOST"),
		EmailPort:     v.GetInt("EMAIL_PORT"),
		EmailUser:     v.GetString("EMAIL_HOST_USER"),
		EmailPassword: v.GetString("EMAIL_HOST_PASSWORD"),

		RedisURL:          v.GetString("REDIS_URL"),
		OTPTTL:            v.GetDuration("OTP_TTL"),
		OTPResendInterval: v.GetDuration("OTP_RESEND_INTERVAL"),

		ModelServerURL:         strings.TrimRight(v.GetString("MODEL_SERVER_URL"), "/"),
		DetectorThresholds:     v.GetString("DETECTOR_THRESHOLDS"),
		DetectorMaxConcurrency: v.GetInt("DETECTOR_MAX_CONCURRENCY"),
		MaxUploadBytes:         v.GetInt64("MAX_UPLOAD_BYTES"),

		StaticDir: v.GetString("STATIC_DIR"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if env.DatabaseURL == "" {
		return env, fmt.Errorf("config: DB_URL not set")
	}
	if env.JWTSecret == "" {
		return env, fmt.Errorf("config: JWT_SECRET_KEY not set")
	}
	// Without SMTP credentials reset codes would only reach the logs.
	if !isDev && env.EmailUser == "" {
		return env, fmt.Errorf("config: EMAIL_HOST_USER not set in production")
	}
	if env.DetectorMaxConcurrency <= 0 {
		env.DetectorMaxConcurrency = runtime.NumCPU()
	}

	return env, nil
}

// UsesCloudinary reports whether enough Cloudinary credentials are present.
func (e Environment) UsesCloudinary() bool {
	if e.CloudinaryURL != "" {
		return true
	}
	return e.CloudinaryCloudName != "" && e.CloudinaryAPIKey != "" && e.CloudinaryAPISecret != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "5000")

	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("SESSION_COOKIE_NAME", "stego_session")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")

	v.SetDefault("LOCAL_STORAGE_DIR", "./uploads")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:5000")

	v.SetDefault("EMAIL_HOST", "smtp.gmail.com")
	v.SetDefault("EMAIL_PORT", 587)

	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_RESEND_INTERVAL", "60s")

	v.SetDefault("MAX_UPLOAD_BYTES", 50<<20)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
