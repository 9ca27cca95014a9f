package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort          string
	HTTPWriteTimeout time.Duration
	JWTKey           []byte
	JWTExp           time.Duration

	StoreDriver string // postgres | memory

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatusChannel string

	ScriptDir         string
	BashPath          string
	PowerShellPath    string
	BatchPath         string
	StopTimeout       time.Duration
	StopKillGrace     time.Duration
	ProgressEstimator string // volume | heartbeat
	ProgressHeartbeat time.Duration
	WSFrameInterval   time.Duration

	LogLevel  string
	LogFormat string
	LogOutput string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:          getEnv("API_PORT", "3000"),
		HTTPWriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 0),
		JWTKey:           []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:           time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "user"),
		DBPassword:       getEnv("DB_PASSWORD", "password"),
		DBName:           getEnv("DB_NAME", "script_console_db"),
		DBSslMode:        getEnv("DB_SSLMODE", "disable"),
		RedisEnabled:     getEnvAsBool("REDIS_ENABLED", false),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		StatusChannel:    getEnv("STATUS_CHANNEL", "script_status"),

		ScriptDir:         getEnv("SCRIPT_DIR", os.TempDir()),
		BashPath:          getEnv("BASH_PATH", "bash"),
		PowerShellPath:    getEnv("POWERSHELL_PATH", defaultPowerShell()),
		BatchPath:         getEnv("BATCH_PATH", "cmd.exe"),
		StopTimeout:       getEnvAsDuration("STOP_TIMEOUT", 5*time.Second),
		StopKillGrace:     getEnvAsDuration("STOP_KILL_GRACE", 2*time.Second),
		ProgressEstimator: strings.ToLower(getEnv("PROGRESS_ESTIMATOR", "volume")),
		ProgressHeartbeat: getEnvAsDuration("PROGRESS_HEARTBEAT", time.Second),
		WSFrameInterval:   getEnvAsDuration("WS_FRAME_INTERVAL", 100*time.Millisecond),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func defaultPowerShell() string {
	if os.PathSeparator == '\\' {
		return "powershell.exe"
	}
	return "pwsh"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("750ms", "5s") or plain seconds ("5").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
