package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings  `json:"server"`
	Storage  StorageSettings `json:"storage"`
	Catalog  CatalogSettings `json:"catalog"`
	Search   SearchSettings  `json:"search"`
	Media    MediaSettings   `json:"media"`
	Sessions SessionSettings `json:"sessions"`
	Log      LogConfig       `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StorageSettings selects and configures the collection document store.
type StorageSettings struct {
	Backend    string `json:"backend"`   // file | sqlite
	Directory  string `json:"directory"` // root for file documents and users.json
	SQLitePath string `json:"sqlitePath"`
}

// CatalogSettings holds upstream catalog credentials and endpoints.
type CatalogSettings struct {
	RAWGAPIKey     string `json:"rawgApiKey"`
	RAWGBaseURL    string `json:"rawgBaseUrl"`
	AniListURL     string `json:"anilistUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
}

// SearchSettings tunes the search bridge.
type SearchSettings struct {
	DebounceMillis int `json:"debounceMillis"`
	MaxResults     int `json:"maxResults"`
	MaxConcurrent  int `json:"maxConcurrent"`
}

// Debounce returns the debounce window as a duration.
func (s SearchSettings) Debounce() time.Duration {
	return time.Duration(s.DebounceMillis) * time.Millisecond
}

// MediaSettings configures profile imagery storage.
type MediaSettings struct {
	Directory     string `json:"directory"`
	PublicBaseURL string `json:"publicBaseUrl"`
	MaxDimension  int    `json:"maxDimension"`
	MaxUploadMB   int    `json:"maxUploadMB"`
}

// SessionSettings configures login tokens.
type SessionSettings struct {
	TTLHours int `json:"ttlHours"`
}

// TTL returns the session lifetime; zero means sessions never expire.
func (s SessionSettings) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// LogConfig represents the rotating log file configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7788},
		Storage: StorageSettings{
			Backend:    "file",
			Directory:  "cache/data",
			SQLitePath: "cache/collections.db",
		},
		Catalog: CatalogSettings{
			RAWGAPIKey:     "",
			RAWGBaseURL:    "https://api.rawg.io/api",
			AniListURL:     "https://graphql.anilist.co",
			TimeoutSeconds: 10,
			MaxRetries:     3,
		},
		Search: SearchSettings{DebounceMillis: 800, MaxResults: 8, MaxConcurrent: 4},
		Media: MediaSettings{
			Directory:     "cache/media",
			PublicBaseURL: "http://localhost:7788/media",
			MaxDimension:  512,
			MaxUploadMB:   10,
		},
		Sessions: SessionSettings{TTLHours: 24 * 30},
		Log: LogConfig{
			File:       "cache/logs/playlog.log",
			Level:      "info",
			MaxSize:    50, // MB per file
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return Settings{}, err
	}

	// Older installs kept the RAWG key at the top level.
	if key, ok := raw["rawgApiKey"].(string); ok {
		catalogRaw, _ := raw["catalog"].(map[string]interface{})
		if catalogRaw == nil {
			catalogRaw = map[string]interface{}{}
			raw["catalog"] = catalogRaw
		}
		if existing, _ := catalogRaw["rawgApiKey"].(string); strings.TrimSpace(existing) == "" {
			catalogRaw["rawgApiKey"] = key
		}
		delete(raw, "rawgApiKey")
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(buf, &s); err != nil {
		return Settings{}, err
	}

	backfill(&s)
	return s, nil
}

func backfill(s *Settings) {
	defaults := DefaultSettings()

	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = defaults.Server.Host
	}

	if strings.TrimSpace(s.Storage.Backend) == "" {
		s.Storage.Backend = defaults.Storage.Backend
	}
	if strings.TrimSpace(s.Storage.Directory) == "" {
		s.Storage.Directory = defaults.Storage.Directory
	}
	if strings.TrimSpace(s.Storage.SQLitePath) == "" {
		s.Storage.SQLitePath = defaults.Storage.SQLitePath
	}

	if strings.TrimSpace(s.Catalog.RAWGBaseURL) == "" {
		s.Catalog.RAWGBaseURL = defaults.Catalog.RAWGBaseURL
	}
	if strings.TrimSpace(s.Catalog.AniListURL) == "" {
		s.Catalog.AniListURL = defaults.Catalog.AniListURL
	}
	if s.Catalog.TimeoutSeconds <= 0 {
		s.Catalog.TimeoutSeconds = defaults.Catalog.TimeoutSeconds
	}
	if s.Catalog.MaxRetries <= 0 {
		s.Catalog.MaxRetries = defaults.Catalog.MaxRetries
	}

	if s.Search.DebounceMillis <= 0 {
		s.Search.DebounceMillis = defaults.Search.DebounceMillis
	}
	if s.Search.MaxResults <= 0 || s.Search.MaxResults > defaults.Search.MaxResults {
		s.Search.MaxResults = defaults.Search.MaxResults
	}
	if s.Search.MaxConcurrent <= 0 {
		s.Search.MaxConcurrent = defaults.Search.MaxConcurrent
	}

	if strings.TrimSpace(s.Media.Directory) == "" {
		s.Media.Directory = defaults.Media.Directory
	}
	if strings.TrimSpace(s.Media.PublicBaseURL) == "" {
		s.Media.PublicBaseURL = defaults.Media.PublicBaseURL
	}
	if s.Media.MaxDimension <= 0 {
		s.Media.MaxDimension = defaults.Media.MaxDimension
	}
	if s.Media.MaxUploadMB <= 0 {
		s.Media.MaxUploadMB = defaults.Media.MaxUploadMB
	}

	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = defaults.Log.File
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = defaults.Log.MaxSize
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = defaults.Log.MaxAge
	}
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
