// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
// Конфиг загружается один раз при старте процесса и дальше передаётся явно:
// секреты не перечитываются из окружения по ходу работы.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env:"APP_ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"DATABASE_URL" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Stripe                  `yaml:"stripe"`
	RabbitURL               string `yaml:"rabbit_url" env:"RABBIT_URL"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env:"HTTP_TIMEOUT" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env:"REDIS_TIMEOUT" env-default:"3s"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"168h"`
}

// Stripe структура для настройки интеграции с биллингом.
// WebhookSecret может быть пустым только вместе с AllowUnverifiedWebhooks
// в окружении local: проверка подписи никогда не отключается молча.
type Stripe struct {
	SecretKey               string        `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret           string        `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	PriceID                 string        `yaml:"price_id" env:"STRIPE_PRICE_ID"`
	SuccessURL              string        `yaml:"success_url" env:"STRIPE_SUCCESS_URL"`
	CancelURL               string        `yaml:"cancel_url" env:"STRIPE_CANCEL_URL"`
	APITimeout              time.Duration `yaml:"api_timeout" env:"STRIPE_API_TIMEOUT" env-default:"10s"`
	AllowUnverifiedWebhooks bool          `yaml:"allow_unverified_webhooks" env:"ALLOW_UNVERIFIED_WEBHOOKS"`
}

// MustLoad функция для загрузки конфига. Читает файл из CONFIG_PATH, если он
// задан, иначе собирает конфиг из переменных окружения. Завершает процесс
// при ошибке или небезопасной комбинации настроек.
func MustLoad() *Config {
	var cfg Config

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Fatalf("file: %s - does not exist", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config: %s", err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("cannot read config from env: %s", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
	return &cfg
}

// Validate проверяет небезопасные комбинации настроек. Флаг
// allow_unverified_webhooks отключает проверку подписи целиком, поэтому
// вне local он запрещён независимо от наличия секрета.
func (c *Config) Validate() error {
	if c.Stripe.AllowUnverifiedWebhooks && c.Env != "local" {
		return fmt.Errorf("allow_unverified_webhooks is allowed only in local env, got %q", c.Env)
	}
	if c.Stripe.WebhookSecret == "" && !c.Stripe.AllowUnverifiedWebhooks {
		return fmt.Errorf("stripe webhook_secret is empty and allow_unverified_webhooks is not set")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n"+
			"Stripe:\n"+
			"  PriceID: %s\n"+
			"  APITimeout: %s\n"+
			"  AllowUnverifiedWebhooks: %t\n",
		c.Env,
		c.StorageConnectionString,
		c.MigrationsPath,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.TokenTTL,
		c.PriceID,
		c.APITimeout,
		c.AllowUnverifiedWebhooks,
	)
}
