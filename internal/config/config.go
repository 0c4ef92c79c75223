package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Durations are parsed with
// time.ParseDuration; counts and costs are plain integers.
type Config struct {
	Env                string        // application environment (e.g. "dev", "prod")
	Port               string        // HTTP port to listen on
	DBUser             string        // database username
	DBPass             string        // database password (optional)
	DBHost             string        // database host address
	DBPort             string        // database port number
	DBName             string        // database name
	DBMaxOpenConns     int           // connection pool: max open connections
	DBMaxIdleConns     int           // connection pool: max idle connections
	DBConnMaxLifetime  time.Duration // connection pool: max connection age
	JWTAdminSecret     string        // secret used to sign admin JWTs
	JWTOtpSecret       string        // secret used to sign customer OTP session JWTs
	SessionTTL         time.Duration // lifetime of customer and admin session tokens
	OtpTTL             time.Duration // lifetime of a one-time login code
	BcryptCost         int           // bcrypt cost for password and OTP hashing
	ReservationTTL     time.Duration // how long a reservation holds stock before expiring
	SweepInterval      time.Duration // how often the expiration sweeper runs
	SweepBatchSize     int           // max reservations expired per sweep
	SweepItemTimeout   time.Duration // per-reservation budget inside a sweep
	AMQPURL            string        // RabbitMQ URL for notification events (optional)
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.  The
// reservation engine knobs all have production defaults so a minimal
// environment only needs the server and database settings.
func Load() Config {
	return Config{
		Env:               must("APP_ENV"),
		Port:              must("APP_PORT"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"), // empty allowed
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		DBMaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		JWTAdminSecret:    must("JWT_ADMIN_SECRET"),
		JWTOtpSecret:      must("JWT_OTP_SECRET"),
		SessionTTL:        envDuration("SESSION_TTL", 24*time.Hour),
		OtpTTL:            envDuration("OTP_TTL", 10*time.Minute),
		BcryptCost:        envInt("BCRYPT_COST", 10),
		ReservationTTL:    envDuration("RESERVATION_TTL", 48*time.Hour),
		SweepInterval:     envDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepBatchSize:    envInt("SWEEP_BATCH_SIZE", 50),
		SweepItemTimeout:  envDuration("SWEEP_ITEM_TIMEOUT", 5*time.Second),
		AMQPURL:           os.Getenv("RABBITMQ_URL"), // empty disables the broker
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envInt reads an integer environment variable, falling back to def when
// unset or malformed.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDuration reads a time.Duration environment variable (e.g. "5m",
// "48h"), falling back to def when unset or malformed.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
