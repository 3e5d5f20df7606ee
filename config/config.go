package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultPath = "./config/config.yaml"

type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p Postgres) ConnStr() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s", p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode)
}

func (p Postgres) ReplicationConnStr() string {
	return p.ConnStr() + " replication=database"
}

// Database selects the gorm dialect. SQLite is meant for local runs and
// tests; semantic search and CDC need Postgres.
type Database struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlitePath"`
	LogQueries bool   `mapstructure:"logQueries"`
}

type Nats struct {
	Host               string `mapstructure:"host"`
	Port               string `mapstructure:"port"`
	Stream             string `mapstructure:"stream"`
	RestaurantsSubject string `mapstructure:"restaurantsSubject"`
	ReviewsSubject     string `mapstructure:"reviewsSubject"`
}

func (n Nats) ConnStr() string {
	return fmt.Sprintf("nats://%s:%s", n.Host, n.Port)
}

func (n Nats) Enabled() bool {
	return n.Host != ""
}

func (n Nats) Subjects() []string {
	return []string{n.RestaurantsSubject, n.ReviewsSubject}
}

type Replication struct {
	Name string `mapstructure:"name"`
	Slot string `mapstructure:"slot"`
}

// LLM configures the generative and embedding models. Provider is either
// "ollama" (Host/Port) or "googleai" (APIKey).
type LLM struct {
	Provider       string `mapstructure:"provider"`
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	APIKey         string `mapstructure:"apiKey"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embeddingModel"`

	Temperature     float64 `mapstructure:"temperature"`
	TopP            float64 `mapstructure:"topP"`
	TopK            int     `mapstructure:"topK"`
	MaxOutputTokens int     `mapstructure:"maxOutputTokens"`

	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"maxAttempts"`
	RequestsPerSecond float64       `mapstructure:"requestsPerSecond"`
	Burst             int           `mapstructure:"burst"`
}

func (l *LLM) Address() string {
	return fmt.Sprintf("http://%s:%s", l.Host, l.Port)
}

type Server struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Auth struct {
	JWTSecret  string        `mapstructure:"jwtSecret"`
	AccessTTL  time.Duration `mapstructure:"accessTTL"`
	RefreshTTL time.Duration `mapstructure:"refreshTTL"`

	AdminName     string `mapstructure:"adminName"`
	AdminEmail    string `mapstructure:"adminEmail"`
	AdminCPF      string `mapstructure:"adminCPF"`
	AdminPassword string `mapstructure:"adminPassword"`
}

type Uploads struct {
	Dir       string `mapstructure:"dir"`
	PublicURL string `mapstructure:"publicURL"`
}

// PosterURL returns the public address of a stored poster, or "" when the
// restaurant has none.
func (u Uploads) PosterURL(poster string) string {
	if poster == "" {
		return ""
	}
	return strings.TrimRight(u.PublicURL, "/") + "/" + poster
}

type Embedder struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queueSize"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Postgres    Postgres    `mapstructure:"postgres"`
	Nats        Nats        `mapstructure:"nats"`
	Replication Replication `mapstructure:"replication"`
	LLM         LLM         `mapstructure:"llm"`
	Auth        Auth        `mapstructure:"auth"`
	Uploads     Uploads     `mapstructure:"uploads"`
	Embedder    Embedder    `mapstructure:"embedder"`
	Log         Log         `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlitePath", "lavraseats.db")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "lavraseats")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("nats.host", "")
	v.SetDefault("nats.port", "4222")
	v.SetDefault("nats.stream", "LAVRASEATS")
	v.SetDefault("nats.restaurantsSubject", "cdc.restaurants")
	v.SetDefault("nats.reviewsSubject", "cdc.reviews")

	v.SetDefault("replication.name", "lavraseats_pub")
	v.SetDefault("replication.slot", "lavraseats_slot")

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.host", "localhost")
	v.SetDefault("llm.port", "11434")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "llama3.1")
	v.SetDefault("llm.embeddingModel", "nomic-embed-text")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.topP", 0.8)
	v.SetDefault("llm.topK", 40)
	v.SetDefault("llm.maxOutputTokens", 2000)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.maxAttempts", 1)
	v.SetDefault("llm.requestsPerSecond", 5.0)
	v.SetDefault("llm.burst", 5)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.adminName", "Administrator")
	v.SetDefault("auth.adminEmail", "")
	v.SetDefault("auth.adminCPF", "")
	v.SetDefault("auth.adminPassword", "")
	v.SetDefault("auth.accessTTL", 24*time.Hour)
	v.SetDefault("auth.refreshTTL", 7*24*time.Hour)

	v.SetDefault("uploads.dir", "./uploads/posters")
	v.SetDefault("uploads.publicURL", "http://localhost:8000/imgs/posters")

	v.SetDefault("embedder.workers", 2)
	v.SetDefault("embedder.queueSize", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the yaml file at path, overlaid with environment variables
// (LLM_APIKEY, AUTH_JWTSECRET, ...). A missing file is not an error when the
// environment carries the configuration.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.LLM.Provider {
	case "ollama":
	case "googleai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.apiKey is required for the googleai provider")
		}
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required")
	}

	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.maxAttempts must be at least 1")
	}

	if c.Auth.AdminCPF != "" && !ValidCPF(c.Auth.AdminCPF) {
		return fmt.Errorf("auth.adminCPF must be 11 digits without punctuation")
	}

	return nil
}

// ValidCPF reports whether cpf is in the stored form: exactly 11 digits.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	for _, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func LoadConfig() *Config {
	path := os.Getenv("LAVRASEATS_CONFIG")
	if path == "" {
		path = DefaultPath
	}

	config, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}

	return config
}
