package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuracion del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	MongoURI string `env:"MONGO_URI,required"`
	MongoDB  string `env:"MONGO_DB" envDefault:"oba_connect"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTAccessSecret   string `env:"JWT_ACCESS_SECRET,required"`
	JWTRefreshSecret  string `env:"JWT_REFRESH_SECRET,required"`
	AccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"1440"`
	RefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	SessionCacheTTLMinutes int `env:"SESSION_CACHE_TTL_MINUTES" envDefault:"15"`

	RateLimitWindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"900"`
	RateLimitMax           int `env:"RATE_LIMIT_MAX" envDefault:"10"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`
}

// LoadConfig carga la configuracion desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
