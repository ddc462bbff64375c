package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port int `env:"PORT" envDefault:"8080"`
		// PublicURL is the externally reachable base URL of this service,
		// used to build the captcha web-app link. Empty disables the captcha button.
		PublicURL string `env:"PUBLIC_URL" envDefault:""`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Telegram struct {
		BotToken     string  `env:"BOT_TOKEN,required"`
		AdminGroupID int64   `env:"ADMIN_GROUP_ID,required"`
		AdminIDs     []int64 `env:"ADMIN_IDS" envSeparator:","`
	}

	Captcha struct {
		TurnstileSiteKey   string `env:"TURNSTILE_SITE_KEY" envDefault:""`
		TurnstileSecretKey string `env:"TURNSTILE_SECRET_KEY" envDefault:""`
		RecaptchaSiteKey   string `env:"RECAPTCHA_SITE_KEY" envDefault:""`
		RecaptchaSecretKey string `env:"RECAPTCHA_SECRET_KEY" envDefault:""`
	}
}

func Load() *Config {
	// .env is optional; in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}

// IsRootAdmin reports whether id is in the statically configured admin list.
func (c *Config) IsRootAdmin(id int64) bool {
	for _, a := range c.Telegram.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
