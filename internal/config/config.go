package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/slotbot/internal/secrets"
)

const dateLayout = "2006-01-02"

// Config is built once at startup and passed by value; nothing mutates it
// after Load returns.
type Config struct {
	Centres       []string      `yaml:"centres"`
	Credentials   Credentials   `yaml:"credentials"`
	Booking       Booking       `yaml:"booking"`
	Browser       Browser       `yaml:"browser"`
	Portal        Portal        `yaml:"portal"`
	Notifications Notifications `yaml:"notifications"`
	Cookies       Cookies       `yaml:"cookies"`

	DatabaseURL string `yaml:"database_url"` // optional booking history
	StatusAddr  string `yaml:"status_addr"`  // optional /status + /metrics listener
	LogLevel    string `yaml:"log_level"`
}

type Credentials struct {
	UserID   string `yaml:"user_id"`
	Password string `yaml:"password"`
}

type Booking struct {
	BatchSize        int    `yaml:"batch_size"`
	AttemptsPerBatch int    `yaml:"attempts_per_batch"`
	CooldownMinutes  int    `yaml:"cooldown_minutes"`
	MaxBookings      int    `yaml:"max_bookings"`
	EarliestDate     string `yaml:"earliest_date"` // YYYY-MM-DD, optional
	LatestDate       string `yaml:"latest_date"`   // YYYY-MM-DD, optional
}

type Browser struct {
	Initial       string        `yaml:"initial"` // chrome | edge
	SessionBudget time.Duration `yaml:"session_budget"`
	Headless      bool          `yaml:"headless"`
	Chrome        Profile       `yaml:"chrome"`
	Edge          Profile       `yaml:"edge"`
}

type Profile struct {
	ExecPath   string `yaml:"exec_path"`
	ProfileDir string `yaml:"profile_dir"`
}

type Portal struct {
	StartURL     string `yaml:"start_url"`
	BookingURL   string `yaml:"booking_url"`
	TestCategory string `yaml:"test_category"`
}

type Notifications struct {
	DiscordWebhook string `yaml:"discord_webhook"`
	ClientWebhook  string `yaml:"client_webhook"`
}

// Cookies configures the optional signed cookie snapshot. Keys are base64
// values or paths to files holding them.
type Cookies struct {
	Path     string `yaml:"path"`
	HashKey  string `yaml:"hash_key"`
	BlockKey string `yaml:"block_key"`

	Hash  []byte `yaml:"-"`
	Block []byte `yaml:"-"`
}

// Enabled reports whether a cookie snapshot should be read and written.
func (c Cookies) Enabled() bool { return c.Path != "" && len(c.Hash) > 0 }

func Defaults() Config {
	tmp := os.TempDir()
	return Config{
		Booking: Booking{
			BatchSize:        3,
			AttemptsPerBatch: 50,
			CooldownMinutes:  10,
			MaxBookings:      5,
		},
		Browser: Browser{
			Initial:       "edge",
			SessionBudget: 15 * time.Minute,
			Chrome:        Profile{ProfileDir: filepath.Join(tmp, "slotbot-chrome")},
			Edge:          Profile{ExecPath: "microsoft-edge", ProfileDir: filepath.Join(tmp, "slotbot-edge")},
		},
		Portal: Portal{
			StartURL:     "https://www.gov.uk/book-pupil-driving-test",
			BookingURL:   "https://driver-services.dvsa.gov.uk/obs-web/pages/home",
			TestCategory: "TC-B",
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (optional), applies environment overrides,
// opens sealed credentials and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.openCredentials(os.Getenv("SLOTBOT_SECRET_KEY")); err != nil {
		return Config{}, err
	}
	if err := cfg.decodeCookieKeys(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := getenv("SLOTBOT_CENTRES", ""); v != "" {
		cfg.Centres = splitCSV(v)
	}
	cfg.Credentials.UserID = getenv("SLOTBOT_USER_ID", cfg.Credentials.UserID)
	cfg.Credentials.Password = getenv("SLOTBOT_PASSWORD", cfg.Credentials.Password)
	cfg.Notifications.DiscordWebhook = getenv("SLOTBOT_DISCORD_WEBHOOK", cfg.Notifications.DiscordWebhook)
	cfg.Notifications.ClientWebhook = getenv("SLOTBOT_CLIENT_WEBHOOK", cfg.Notifications.ClientWebhook)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.StatusAddr = getenv("SLOTBOT_STATUS_ADDR", cfg.StatusAddr)
	cfg.Browser.Initial = getenv("SLOTBOT_BROWSER", cfg.Browser.Initial)
	cfg.Cookies.HashKey = getenv("COOKIE_HASH_KEY", cfg.Cookies.HashKey)
	cfg.Cookies.BlockKey = getenv("COOKIE_BLOCK_KEY", cfg.Cookies.BlockKey)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)

	if v := getenv("SLOTBOT_MAX_BOOKINGS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SLOTBOT_MAX_BOOKINGS: %w", err)
		}
		cfg.Booking.MaxBookings = n
	}
	return nil
}

func (c *Config) openCredentials(secretKey string) error {
	if !secrets.IsSealed(c.Credentials.UserID) && !secrets.IsSealed(c.Credentials.Password) {
		return nil
	}
	if secretKey == "" {
		return fmt.Errorf("credentials are sealed but SLOTBOT_SECRET_KEY is not set")
	}
	key, err := decodeB64(secretKey)
	if err != nil {
		return fmt.Errorf("SLOTBOT_SECRET_KEY: %w", err)
	}
	box, err := secrets.New(key)
	if err != nil {
		return err
	}
	for _, field := range []*string{&c.Credentials.UserID, &c.Credentials.Password} {
		if !secrets.IsSealed(*field) {
			continue
		}
		v, err := box.Open(*field)
		if err != nil {
			return fmt.Errorf("credentials: %w", err)
		}
		*field = v
	}
	return nil
}

func (c *Config) decodeCookieKeys() error {
	if c.Cookies.HashKey == "" {
		return nil
	}
	var err error
	c.Cookies.Hash, err = decodeB64(c.Cookies.HashKey)
	if err != nil {
		return fmt.Errorf("COOKIE_HASH_KEY: %w", err)
	}
	if c.Cookies.BlockKey != "" {
		c.Cookies.Block, err = decodeB64(c.Cookies.BlockKey)
		if err != nil {
			return fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}
	return nil
}

// Validate reports every configuration fault at once. Any error here is
// fatal: the booking loop never starts with a bad config.
func (c Config) Validate() error {
	var errs []error
	if len(c.Centres) == 0 {
		errs = append(errs, errors.New("centres: at least one centre is required"))
	}
	for i, centre := range c.Centres {
		if strings.TrimSpace(centre) == "" {
			errs = append(errs, fmt.Errorf("centres[%d]: empty name", i))
		}
	}
	if c.Credentials.UserID == "" || c.Credentials.Password == "" {
		errs = append(errs, errors.New("credentials: user_id and password are required"))
	}
	if c.Booking.BatchSize < 1 {
		errs = append(errs, errors.New("booking.batch_size must be >= 1"))
	}
	if c.Booking.AttemptsPerBatch < 1 {
		errs = append(errs, errors.New("booking.attempts_per_batch must be >= 1"))
	}
	if c.Booking.CooldownMinutes < 0 {
		errs = append(errs, errors.New("booking.cooldown_minutes must be >= 0"))
	}
	if c.Booking.MaxBookings < 1 {
		errs = append(errs, errors.New("booking.max_bookings must be >= 1"))
	}
	earliest, latest, err := c.Window()
	if err != nil {
		errs = append(errs, err)
	} else if !earliest.IsZero() && !latest.IsZero() && latest.Before(earliest) {
		errs = append(errs, errors.New("booking.latest_date must not be before earliest_date"))
	}
	switch c.Browser.Initial {
	case "chrome", "edge":
	default:
		errs = append(errs, fmt.Errorf("browser.initial: unknown browser %q (want chrome or edge)", c.Browser.Initial))
	}
	if c.Browser.SessionBudget <= 0 {
		errs = append(errs, errors.New("browser.session_budget must be positive"))
	}
	if c.Portal.StartURL == "" || c.Portal.BookingURL == "" {
		errs = append(errs, errors.New("portal: start_url and booking_url are required"))
	}
	if c.Cookies.Path != "" && len(c.Cookies.Hash) == 0 {
		errs = append(errs, errors.New("cookies.path is set but COOKIE_HASH_KEY is missing"))
	}
	return errors.Join(errs...)
}

// Cooldown is the pause between full passes over all centres.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Booking.CooldownMinutes) * time.Minute
}

// Window returns the relevance bounds for calendar weeks; zero values mean
// unbounded.
func (c Config) Window() (earliest, latest time.Time, err error) {
	if c.Booking.EarliestDate != "" {
		earliest, err = time.Parse(dateLayout, c.Booking.EarliestDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("booking.earliest_date (want YYYY-MM-DD): %w", err)
		}
	}
	if c.Booking.LatestDate != "" {
		latest, err = time.Parse(dateLayout, c.Booking.LatestDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("booking.latest_date (want YYYY-MM-DD): %w", err)
		}
	}
	return earliest, latest, nil
}

func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		// allow pointing to file path for k8s secret mounts
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
