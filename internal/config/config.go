package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Torrent client (qBittorrent and/or Transmission; first reachable wins)
	QBittorrentURL      string
	QBittorrentUsername string
	QBittorrentPassword string
	TransmissionURL     string

	// Plex
	PlexURL   string
	PlexToken string

	// Sources
	YTSEnabled   bool
	EZTVEnabled  bool
	RARBGEnabled bool

	// Trackers appended to magnets built from bare info hashes
	Trackers []string

	// Search policy
	QualityPriority     []string // ordered, also the allowed set
	SimilarityThreshold float64  // [0,1], normalized title similarity cutoff
	PageCeiling         int      // max result pages fetched per source per query
	SourceConcurrency   int      // max concurrent outbound requests per source

	// Loop intervals
	ReconcileInterval time.Duration
	TrackerInterval   time.Duration

	// Server
	ServerPort string

	// Paths
	DatabaseFile  string // $CONFIG_DIR/roundup.db
	BlacklistFile string // $CONFIG_DIR/blacklist.txt

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("YTS_ENABLED", true)
	viper.SetDefault("EZTV_ENABLED", true)
	viper.SetDefault("RARBG_ENABLED", true)
	viper.SetDefault("TRACKERS", "udp://open.demonii.com:1337/announce,udp://tracker.openbittorrent.com:80,udp://tracker.coppersurfer.tk:6969")
	viper.SetDefault("QUALITY_PRIORITY", "1080p,720p")
	viper.SetDefault("SIMILARITY_THRESHOLD", 0.85)
	viper.SetDefault("PAGE_CEILING", 10)
	viper.SetDefault("SOURCE_CONCURRENCY", 4)
	viper.SetDefault("RECONCILE_INTERVAL_HOURS", 6)
	viper.SetDefault("TRACKER_INTERVAL_SECONDS", 30)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "roundup")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	reconcileHours := viper.GetInt("RECONCILE_INTERVAL_HOURS")
	if reconcileHours < 6 {
		// Minimum of 6 hours to avoid hammering the indexes for nothing
		reconcileHours = 6
	}

	config := &Config{
		QBittorrentURL:      viper.GetString("QBITTORRENT_URL"),
		QBittorrentUsername: viper.GetString("QBITTORRENT_USERNAME"),
		QBittorrentPassword: viper.GetString("QBITTORRENT_PASSWORD"),
		TransmissionURL:     viper.GetString("TRANSMISSION_URL"),

		PlexURL:   viper.GetString("PLEX_URL"),
		PlexToken: viper.GetString("PLEX_TOKEN"),

		YTSEnabled:   viper.GetBool("YTS_ENABLED"),
		EZTVEnabled:  viper.GetBool("EZTV_ENABLED"),
		RARBGEnabled: viper.GetBool("RARBG_ENABLED"),

		Trackers: splitList(viper.GetString("TRACKERS")),

		QualityPriority:     splitList(viper.GetString("QUALITY_PRIORITY")),
		SimilarityThreshold: viper.GetFloat64("SIMILARITY_THRESHOLD"),
		PageCeiling:         viper.GetInt("PAGE_CEILING"),
		SourceConcurrency:   viper.GetInt("SOURCE_CONCURRENCY"),

		ReconcileInterval: time.Duration(reconcileHours) * time.Hour,
		TrackerInterval:   time.Duration(viper.GetInt("TRACKER_INTERVAL_SECONDS")) * time.Second,

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile:  filepath.Join(configDir, "roundup.db"),
		BlacklistFile: filepath.Join(configDir, "blacklist.txt"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if config.QBittorrentURL == "" && config.TransmissionURL == "" {
		return nil, fmt.Errorf("QBITTORRENT_URL or TRANSMISSION_URL is required")
	}
	if config.PlexURL == "" {
		return nil, fmt.Errorf("PLEX_URL is required")
	}
	if config.PlexToken == "" {
		return nil, fmt.Errorf("PLEX_TOKEN is required")
	}
	if len(config.QualityPriority) == 0 {
		return nil, fmt.Errorf("QUALITY_PRIORITY must list at least one quality")
	}
	if config.SimilarityThreshold < 0 || config.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("SIMILARITY_THRESHOLD must be within [0, 1]")
	}
	if config.PageCeiling < 1 {
		return nil, fmt.Errorf("PAGE_CEILING must be at least 1")
	}
	if config.SourceConcurrency < 1 {
		return nil, fmt.Errorf("SOURCE_CONCURRENCY must be at least 1")
	}

	return config, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
