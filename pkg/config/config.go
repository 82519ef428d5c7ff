package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config configuración principal de la aplicación
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Providers ProvidersConfig
}

// ServerConfig configuración del servidor HTTP
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configuración de PostgreSQL
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configuración de Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EngineConfig parámetros de ejecución del motor de workflows
type EngineConfig struct {
	DefaultWorkflowID string        // workflow usado al crear sesiones nuevas
	MaxHistorySize    int           // máximo de entradas en el historial de sesión
	SaveRetries       int           // reintentos ante conflicto de versión
	SendRetries       int           // reintentos de envío saliente
	SendTimeout       time.Duration // timeout por envío al proveedor
	SessionIdleTTL    time.Duration // inactividad máxima antes de cerrar la sesión
	SyncDelayMax      time.Duration // delays mayores se agendan como continuación
}

// ProvidersConfig configuración de los adaptadores de mensajería
type ProvidersConfig struct {
	MetaCloud MetaCloudConfig
	Gateway   GatewayConfig
}

// MetaCloudConfig credenciales del WhatsApp Cloud API oficial
type MetaCloudConfig struct {
	ProviderID         string
	PhoneNumberID      string
	AccessToken        string
	AppSecret          string
	WebhookVerifyToken string
	APIVersion         string
}

// GatewayConfig credenciales de un gateway WhatsApp self-hosted
type GatewayConfig struct {
	ProviderID string
	BaseURL    string
	APIKey     string
	Instance   string
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	// Cargar .env si existe
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", getEnv("POSTGRES_HOST", "localhost")),
			Port:            getEnv("DB_PORT", getEnv("POSTGRES_PORT", "5432")),
			User:            getEnv("DB_USER", getEnv("POSTGRES_USER", "postgres")),
			Password:        getEnv("DB_PASSWORD", getEnv("POSTGRES_PASSWORD", "postgres")),
			DBName:          getEnv("DB_NAME", getEnv("POSTGRES_DB", "chatflow")),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			DefaultWorkflowID: getEnv("ENGINE_DEFAULT_WORKFLOW_ID", ""),
			MaxHistorySize:    getIntEnv("ENGINE_MAX_HISTORY_SIZE", 200),
			SaveRetries:       getIntEnv("ENGINE_SAVE_RETRIES", 3),
			SendRetries:       getIntEnv("ENGINE_SEND_RETRIES", 2),
			SendTimeout:       getDurationEnv("ENGINE_SEND_TIMEOUT", 15*time.Second),
			SessionIdleTTL:    getDurationEnv("ENGINE_SESSION_IDLE_TTL", 24*time.Hour),
			SyncDelayMax:      getDurationEnv("ENGINE_SYNC_DELAY_MAX", 30*time.Second),
		},
		Providers: ProvidersConfig{
			MetaCloud: MetaCloudConfig{
				ProviderID:         getEnv("META_PROVIDER_ID", "metacloud"),
				PhoneNumberID:      getEnv("META_PHONE_NUMBER_ID", ""),
				AccessToken:        getEnv("META_ACCESS_TOKEN", ""),
				AppSecret:          getEnv("META_APP_SECRET", ""),
				WebhookVerifyToken: getEnv("META_VERIFY_TOKEN", ""),
				APIVersion:         getEnv("META_API_VERSION", ""),
			},
			Gateway: GatewayConfig{
				ProviderID: getEnv("GATEWAY_PROVIDER_ID", "gateway"),
				BaseURL:    getEnv("GATEWAY_BASE_URL", ""),
				APIKey:     getEnv("GATEWAY_API_KEY", ""),
				Instance:   getEnv("GATEWAY_INSTANCE", ""),
			},
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate valida la configuración
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Engine.MaxHistorySize <= 0 {
		return fmt.Errorf("ENGINE_MAX_HISTORY_SIZE must be positive")
	}
	if c.Engine.SaveRetries <= 0 {
		return fmt.Errorf("ENGINE_SAVE_RETRIES must be positive")
	}

	return nil
}

// GetDSN retorna el DSN de PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr retorna la dirección de Redis
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsEnabled indica si el proveedor Meta Cloud está configurado
func (c *MetaCloudConfig) IsEnabled() bool {
	return c.PhoneNumberID != "" && c.AccessToken != ""
}

// IsEnabled indica si el gateway self-hosted está configurado
func (c *GatewayConfig) IsEnabled() bool {
	return c.BaseURL != "" && c.Instance != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
