// internal/config/config.go
//
// Environment-driven configuration for the server and CLI.
// Values come from the process environment (main loads a .env file first via
// godotenv). Unset or unparsable values fall back to the defaults below.
//
// Environment variables:
//   PORT=5175                 HTTP listen port
//   LOG_LEVEL=info            zerolog level
//   DB_PATH=./data/app.db     SQLite file
//   DEFAULT_SIZE=10           board size for /game/new without a size
//   MAX_LEVEL=5               last level before the game is finished
//   DAILY_SIZE=8              board size of the daily challenge
//   DAILY_SALT=...            HMAC salt for the daily seed
//   JWT_SECRET=...            HS256 signing key
//   JWT_EXPIRES_DAYS=14
//   COOKIE_NAME=vsc_token
//   CLIENT_ORIGIN=http://localhost:5173
//   SESSION_IDLE_MINUTES=120  live games untouched this long are evicted
//   NODE_ENV=production       enables Secure/SameSite=None cookies

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/robalobadob/virusspread/internal/game"
)

type Config struct {
	Port           string
	LogLevel       string
	DBPath         string
	DefaultSize    int
	MaxLevel       int
	DailySize      int
	DailySalt      string
	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	ClientOrigin   string
	SessionIdle    time.Duration
	Production     bool
}

// Load reads the environment.
func Load() Config {
	c := Config{
		Port:           Get("PORT", "5175"),
		LogLevel:       Get("LOG_LEVEL", "info"),
		DBPath:         Get("DB_PATH", "./data/app.db"),
		DefaultSize:    Int("DEFAULT_SIZE", game.DefaultSize),
		MaxLevel:       Int("MAX_LEVEL", game.DefaultMaxLevel),
		DailySize:      Int("DAILY_SIZE", 8),
		DailySalt:      Get("DAILY_SALT", "local_dev_salt"),
		JWTSecret:      Get("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays: Int("JWT_EXPIRES_DAYS", 14),
		CookieName:     Get("COOKIE_NAME", "vsc_token"),
		ClientOrigin:   Get("CLIENT_ORIGIN", "http://localhost:5173"),
		SessionIdle:    time.Duration(Int("SESSION_IDLE_MINUTES", 120)) * time.Minute,
		Production:     os.Getenv("NODE_ENV") == "production",
	}
	if c.SessionIdle < time.Minute {
		c.SessionIdle = time.Minute
	}
	c.DefaultSize = clamp(c.DefaultSize, game.MinSize, game.MaxSize)
	c.DailySize = clamp(c.DailySize, game.MinSize, game.MaxSize)
	c.MaxLevel = clamp(c.MaxLevel, 1, game.MaxLevelLimit)
	return c
}

// Get returns the value of k or def if unset/empty.
func Get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Int returns k parsed as an int, or def.
func Int(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
