package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"

	RealtimeLocal        = "local"
	RealtimeChangeStream = "changestream"
)

// Config holds everything the server and the admin CLI read from the environment.
type Config struct {
	Port           string
	StoreDriver    string
	MongoURI       string
	MongoDB        string
	SQLitePath     string
	JWTSecret      string
	TokenExpiry    time.Duration
	StreakLocation *time.Location
	RealtimeSource string
	ReconcileCron  string
	AllowedOrigins []string
	LogLevel       string
	LogFile        string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults/environment variables")
	}

	tzName := getenv("STREAK_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Printf("Unknown STREAK_TIMEZONE %q, falling back to UTC", tzName)
		loc = time.UTC
	}

	driver := strings.ToLower(getenv("STORE_DRIVER", StoreMongo))
	if driver != StoreMongo && driver != StoreSQLite {
		log.Printf("Unknown STORE_DRIVER %q, falling back to %s", driver, StoreMongo)
		driver = StoreMongo
	}

	source := strings.ToLower(getenv("REALTIME_SOURCE", RealtimeLocal))
	if source != RealtimeLocal && source != RealtimeChangeStream {
		source = RealtimeLocal
	}
	if source == RealtimeChangeStream && driver != StoreMongo {
		log.Println("REALTIME_SOURCE=changestream requires STORE_DRIVER=mongo, using local notifications")
		source = RealtimeLocal
	}

	return &Config{
		Port:           getenv("PORT", "8080"),
		StoreDriver:    driver,
		MongoURI:       getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getenv("MONGO_DB", "habit_streaks"),
		SQLitePath:     getenv("SQLITE_PATH", "./data/habits.db"),
		JWTSecret:      getenv("JWT_SECRET", "change-me"),
		TokenExpiry:    getenvDuration("TOKEN_EXPIRY", 72*time.Hour),
		StreakLocation: loc,
		RealtimeSource: source,
		ReconcileCron:  getenv("RECONCILE_CRON", "@every 1h"),
		AllowedOrigins: getenvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
