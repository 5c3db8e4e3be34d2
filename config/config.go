package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"autocurator/filters"
)

type Config struct {
	DataSource  string
	DatabaseURL string
	DBPath      string
	ConfigDir   string
	HTTPTimeout time.Duration
	ApifyAPIKey string

	VIN       VINConfig
	S3        S3Config
	Scheduler SchedulerConfig
	Log       LogConfig

	Criteria filters.Criteria
	Sources  map[string]*SourceConfig
}

type VINConfig struct {
	BaseURL string
	Delay   time.Duration
	Timeout time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether raw batches should be archived.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type LogConfig struct {
	Level  string
	Format string // json or console
	File   string
}

// SourceConfig is one file under config/sources.
type SourceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // generator, apify or dealer

	// generator
	Count int   `yaml:"count"`
	Seed  int64 `yaml:"seed"`

	// apify
	ApifyActor       string         `yaml:"apify_actor"`
	ApifyMaxListings int            `yaml:"apify_max_listings"`
	ApifyInput       map[string]any `yaml:"apify_input"`

	// dealer
	URL        string          `yaml:"url"`
	DealerName string          `yaml:"dealer_name"`
	Location   string          `yaml:"location"`
	Selectors  DealerSelectors `yaml:"selectors"`
	CostPerRun float64         `yaml:"cost_per_run"`
}

// DealerSelectors are CSS selectors for a dealer inventory page. Field
// selectors are evaluated inside each Item match.
type DealerSelectors struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Price   string `yaml:"price"`
	Mileage string `yaml:"mileage"`
	VIN     string `yaml:"vin"`
	Link    string `yaml:"link"`
	Trim    string `yaml:"trim"`

	Detail DetailSelectors `yaml:"detail"`
}

// DetailSelectors read history fields from a vehicle's own page. The page is
// only fetched when at least one selector is set.
type DetailSelectors struct {
	VIN         string `yaml:"vin"`
	TitleStatus string `yaml:"title_status"`
	Accidents   string `yaml:"accidents"`
	Owners      string `yaml:"owners"`
	Location    string `yaml:"location"`
}

func (d DetailSelectors) Empty() bool {
	return d == DetailSelectors{}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataSource:  getEnv("DATA_SOURCE", "generator"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "autocurator.db"),
		ConfigDir:   getEnv("CONFIG_DIR", "config"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		ApifyAPIKey: os.Getenv("APIFY_API_KEY"),
		VIN: VINConfig{
			BaseURL: getEnv("VIN_DECODE_URL", "https://vpic.nhtsa.dot.gov/api/vehicles"),
			Delay:   getEnvDuration("VIN_DECODE_DELAY", 500*time.Millisecond),
			Timeout: getEnvDuration("VIN_TIMEOUT", 10*time.Second),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SCHEDULE_CRON"),
			Interval: getEnvDuration("SCHEDULE_INTERVAL", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   os.Getenv("LOG_FILE"),
		},
		Criteria: filters.DefaultCriteria(),
		Sources:  make(map[string]*SourceConfig),
	}

	criteria, err := LoadCriteria(filepath.Join(cfg.ConfigDir, "criteria.yaml"), cfg.Criteria)
	if err != nil {
		return nil, err
	}
	cfg.Criteria = criteria

	if err := cfg.loadSourceConfigs(filepath.Join(cfg.ConfigDir, "sources")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadCriteria overlays the YAML file at path onto base. A missing file
// returns base unchanged. base itself is never modified.
func LoadCriteria(path string, base filters.Criteria) (filters.Criteria, error) {
	out := base.Clone()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, eris.Wrapf(err, "config: read %s", path)
	}

	// Lists in the file replace the defaults; model_priority entries merge.
	if err := yaml.Unmarshal(data, &out); err != nil {
		return base.Clone(), eris.Wrapf(err, "config: parse %s", path)
	}
	if out.MinPrice > out.MaxPrice {
		return base.Clone(), eris.Errorf("config: %s: min_price %.0f above max_price %.0f", path, out.MinPrice, out.MaxPrice)
	}
	return out, nil
}

func (c *Config) loadSourceConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "config: read %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "config: read %s", path)
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return eris.Wrapf(err, "config: parse %s", path)
		}
		if src.ID == "" {
			src.ID = entry.Name()[:len(entry.Name())-len(".yaml")]
		}

		c.Sources[src.ID] = &src
	}

	return nil
}

// Source returns the configured source for id, or a bare config of that
// kind when no file defines it.
func (c *Config) Source(id string) *SourceConfig {
	if src, ok := c.Sources[id]; ok {
		return src
	}
	return &SourceConfig{ID: id, Name: id, Kind: id}
}

// SourceIDs lists configured sources in name order.
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for id := range c.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("750ms") or bare milliseconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return time.Duration(getEnvInt(key, int(defaultVal/time.Millisecond))) * time.Millisecond
}
