// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/pokebot/internal/poke"
	"github.com/keshon/pokebot/internal/storage"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// ErrNoToken is returned by RequireToken when DISCORD_TOKEN is unset.
var ErrNoToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	StoragePath  string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	RedisURL     string `env:"REDIS_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// Protected users are the bot's masters: poking them escalates, and
	// they get privileged treatment when poking the bot.
	ProtectedUsers []string `env:"PROTECTED_USERS" envSeparator:","`
	DeveloperID    string   `env:"DEVELOPER_ID"`

	ResponsesPath  string `env:"RESPONSES_PATH"`
	ImageDir       string `env:"IMAGE_DIR"`
	VoiceDir       string `env:"VOICE_DIR"`
	MasterImageURL string `env:"MASTER_IMAGE_URL" envDefault:"https://api.xingdream.top/API/poke.php"`

	DailyResetHour int `env:"DAILY_RESET_HOUR" envDefault:"0"`

	Poke PokeConfig `envPrefix:"POKE_"`
}

type PokeConfig struct {
	Enabled          bool   `env:"ENABLED" envDefault:"true"`
	PokebackEnabled  bool   `env:"POKEBACK_ENABLED" envDefault:"false"`
	MasterImage      bool   `env:"MASTER_IMAGE" envDefault:"true"`
	MasterPunishment bool   `env:"MASTER_PUNISHMENT" envDefault:"true"`
	Timezone         string `env:"TIMEZONE"`

	Modules struct {
		Basic       bool `env:"BASIC" envDefault:"true"`
		Mood        bool `env:"MOOD" envDefault:"true"`
		Intimacy    bool `env:"INTIMACY" envDefault:"true"`
		Achievement bool `env:"ACHIEVEMENT" envDefault:"true"`
		Special     bool `env:"SPECIAL" envDefault:"true"`
		Punishment  bool `env:"PUNISHMENT" envDefault:"true"`
		Pokeback    bool `env:"POKEBACK" envDefault:"false"`
		Image       bool `env:"IMAGE" envDefault:"true"`
		Voice       bool `env:"VOICE" envDefault:"false"`
		Master      bool `env:"MASTER" envDefault:"true"`
	} `envPrefix:"MODULES_"`

	Cooldown struct {
		Interaction time.Duration `env:"INTERACTION" envDefault:"30s"`
		Special     time.Duration `env:"SPECIAL" envDefault:"3m"`
		Punishment  time.Duration `env:"PUNISHMENT" envDefault:"1m"`
	} `envPrefix:"COOLDOWN_"`

	Chance struct {
		Mood       float64 `env:"MOOD" envDefault:"0.2"`
		Special    float64 `env:"SPECIAL" envDefault:"0.15"`
		Punishment float64 `env:"PUNISHMENT" envDefault:"0.3"`
		Image      float64 `env:"IMAGE" envDefault:"0.3"`
		Voice      float64 `env:"VOICE" envDefault:"0.2"`
		Stop       float64 `env:"STOP" envDefault:"0.3"`
	} `envPrefix:"CHANCE_"`
}

// New reads the process environment.
func New() (*Config, error) {
	return parse(env.Options{})
}

// FromMap reads vars instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DailyResetHour < 0 || cfg.DailyResetHour > 23 {
		return nil, fmt.Errorf("config: DAILY_RESET_HOUR %d out of range", cfg.DailyResetHour)
	}
	c := cfg.Poke.Chance
	for _, p := range []float64{c.Mood, c.Special, c.Punishment, c.Image, c.Voice, c.Stop} {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("config: chance %v out of range [0,1]", p)
		}
	}
	if _, err := cfg.location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireToken fails when the bot cannot log in.
func (c *Config) RequireToken() error {
	if c.DiscordToken == "" {
		return ErrNoToken
	}
	return nil
}

func (c *Config) location() (*time.Location, error) {
	if c.Poke.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Poke.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: POKE_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Location is the zone used for time-of-day effects and the daily reset.
func (c *Config) Location() *time.Location {
	loc, err := c.location()
	if err != nil {
		return time.Local
	}
	return loc
}

// Poke converts the configuration into engine settings.
func (c *Config) Poke() poke.Settings {
	s := poke.DefaultSettings()
	p := c.Poke

	s.Enabled = p.Enabled
	s.PokebackEnabled = p.PokebackEnabled
	s.MasterImage = p.MasterImage
	s.MasterPunishment = p.MasterPunishment
	s.Location = c.Location()

	s.Modules = poke.Modules{
		Basic:       p.Modules.Basic,
		Mood:        p.Modules.Mood,
		Intimacy:    p.Modules.Intimacy,
		Achievement: p.Modules.Achievement,
		Special:     p.Modules.Special,
		Punishment:  p.Modules.Punishment,
		Pokeback:    p.Modules.Pokeback,
		Image:       p.Modules.Image,
		Voice:       p.Modules.Voice,
		Master:      p.Modules.Master,
	}
	s.Chances = poke.Chances{
		Mood:       p.Chance.Mood,
		Special:    p.Chance.Special,
		Punishment: p.Chance.Punishment,
		Image:      p.Chance.Image,
		Voice:      p.Chance.Voice,
		Stop:       p.Chance.Stop,
	}
	s.Cooldowns = map[string]time.Duration{
		storage.CooldownInteraction: p.Cooldown.Interaction,
		storage.CooldownSpecial:     p.Cooldown.Special,
		storage.CooldownPunishment:  p.Cooldown.Punishment,
	}
	return s
}

// IsProtected reports whether id is one of the bot's masters.
func (c *Config) IsProtected(id string) bool {
	return id != "" && slices.Contains(c.ProtectedUsers, id)
}

// IsDeveloper reports whether id is the configured developer.
func (c *Config) IsDeveloper(id string) bool {
	return id != "" && id == c.DeveloperID
}
