package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete knowledge base configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Documents   DocumentsConfig   `yaml:"documents" json:"documents"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Watch       WatchConfig       `yaml:"watch" json:"watch"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// DocumentsConfig configures where documents and the trash live on disk.
type DocumentsConfig struct {
	// Folder is the root directory holding the markdown document tree.
	Folder string `yaml:"folder" json:"folder"`
	// TrashDir is the subdirectory (relative to Folder) holding trashed documents.
	TrashDir string `yaml:"trash_dir" json:"trash_dir"`
	// CachePath is the sidecar SQLite database path (relative to Folder if not absolute).
	CachePath string `yaml:"cache_path" json:"cache_path"`
}

// SearchConfig configures hybrid search parameters.
// Weights and the BM25 backend are configurable via:
//  1. User config (~/.config/localkb/config.yaml) - personal defaults
//  2. Project config (.localkb.yaml) - per-folder tuning
//  3. Env vars (KB_BM25_WEIGHT, KB_SEMANTIC_WEIGHT) - highest precedence
type SearchConfig struct {
	// BM25Weight weights lexical matching in the final_score blend.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`
	// SemanticWeight weights vector similarity in the final_score blend.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// BM25Backend selects the lexical index backend: "sqlite" (default) or "bleve".
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`
	// ANNThreshold is the document count above which search builds and
	// uses the standalone BM25 index and the HNSW vector index instead of
	// scanning the sidecar directly.
	ANNThreshold int `yaml:"ann_threshold" json:"ann_threshold"`
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults   int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the local embedding model.
type EmbeddingsConfig struct {
	Model           string `yaml:"model" json:"model"`
	ModelPath       string `yaml:"model_path" json:"model_path"`
	Dimensions      int    `yaml:"dimensions" json:"dimensions"`
	MicroBatchSize  int    `yaml:"micro_batch_size" json:"micro_batch_size"`
	SyncBatchSize   int    `yaml:"sync_batch_size" json:"sync_batch_size"`
	MaxTokens       int    `yaml:"max_tokens" json:"max_tokens"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	IndexWorkers  int `yaml:"index_workers" json:"index_workers"`
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
	LRUSize       int `yaml:"lru_size" json:"lru_size"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures logging and process behavior.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LockPath string `yaml:"lock_path" json:"lock_path"`
}

// defaultExcludePatterns are subdirectories never treated as document folders.
var defaultExcludePatterns = []string{
	".trash",
	".git",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Documents: DocumentsConfig{
			Folder:    defaultDocumentsFolder(),
			TrashDir:  ".trash",
			CachePath: ".document-data.db",
		},
		Search: SearchConfig{
			BM25Weight:     0.5,
			SemanticWeight: 0.5,
			BM25Backend:    "sqlite",
			ANNThreshold:   5000,
			ChunkSize:      800,
			ChunkOverlap:   200,
			MaxResults:     20,
		},
		Embeddings: EmbeddingsConfig{
			Model:          "all-MiniLM-L6-v2",
			ModelPath:      "",
			Dimensions:     384,
			MicroBatchSize: 8,
			SyncBatchSize:  75,
			MaxTokens:      512,
		},
		Performance: PerformanceConfig{
			IndexWorkers:  runtime.NumCPU(),
			SQLiteCacheMB: 64,
			LRUSize:       256,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Server: ServerConfig{
			LogLevel: "info",
			LockPath: "",
		},
	}
}

func defaultDocumentsFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".localkb", "documents")
	}
	return filepath.Join(home, ".localkb", "documents")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/localkb/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/localkb/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "localkb", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "localkb", "config.yaml")
	}
	return filepath.Join(home, ".config", "localkb", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory, in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/localkb/config.yaml)
//  3. Project config (.localkb.yaml in dir)
//  4. Environment variables (KB_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .localkb.yaml or .localkb.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".localkb.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".localkb.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Documents.Folder != "" {
		c.Documents.Folder = other.Documents.Folder
	}
	if other.Documents.TrashDir != "" {
		c.Documents.TrashDir = other.Documents.TrashDir
	}
	if other.Documents.CachePath != "" {
		c.Documents.CachePath = other.Documents.CachePath
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.BM25Backend != "" {
		c.Search.BM25Backend = other.Search.BM25Backend
	}
	if other.Search.ANNThreshold != 0 {
		c.Search.ANNThreshold = other.Search.ANNThreshold
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.ModelPath != "" {
		c.Embeddings.ModelPath = other.Embeddings.ModelPath
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.MicroBatchSize != 0 {
		c.Embeddings.MicroBatchSize = other.Embeddings.MicroBatchSize
	}
	if other.Embeddings.SyncBatchSize != 0 {
		c.Embeddings.SyncBatchSize = other.Embeddings.SyncBatchSize
	}
	if other.Embeddings.MaxTokens != 0 {
		c.Embeddings.MaxTokens = other.Embeddings.MaxTokens
	}

	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}
	if other.Performance.LRUSize != 0 {
		c.Performance.LRUSize = other.Performance.LRUSize
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LockPath != "" {
		c.Server.LockPath = other.Server.LockPath
	}
}

// applyEnvOverrides applies KB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KB_DOCUMENTS_FOLDER"); v != "" {
		c.Documents.Folder = v
	}
	if v := os.Getenv("KB_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("KB_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("KB_BM25_BACKEND"); v != "" {
		c.Search.BM25Backend = v
	}
	if v := os.Getenv("KB_EMBEDDINGS_MODEL_PATH"); v != "" {
		c.Embeddings.ModelPath = v
	}
	if v := os.Getenv("KB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KB_LOCK_PATH"); v != "" {
		c.Server.LockPath = v
	}
	if v := os.Getenv("KB_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.IndexWorkers = n
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindProjectRoot finds the project root directory by walking up from startDir
// looking for a .git directory or a .localkb.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".localkb.yaml")) ||
			fileExists(filepath.Join(currentDir, ".localkb.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if c.Search.BM25Weight == 0 && c.Search.SemanticWeight == 0 {
		return fmt.Errorf("bm25_weight and semantic_weight cannot both be zero")
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Search.ChunkSize)
	}
	if c.Search.ChunkOverlap < 0 || c.Search.ChunkOverlap >= c.Search.ChunkSize {
		return fmt.Errorf("chunk_overlap must be non-negative and less than chunk_size, got %d", c.Search.ChunkOverlap)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.BM25Backend)] {
		return fmt.Errorf("search.bm25_backend must be 'sqlite' or 'bleve', got %s", c.Search.BM25Backend)
	}
	if c.Search.ANNThreshold < 0 {
		return fmt.Errorf("search.ann_threshold must be non-negative, got %d", c.Search.ANNThreshold)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.MicroBatchSize <= 0 {
		return fmt.Errorf("embeddings.micro_batch_size must be positive, got %d", c.Embeddings.MicroBatchSize)
	}
	if c.Embeddings.SyncBatchSize <= 0 {
		return fmt.Errorf("embeddings.sync_batch_size must be positive, got %d", c.Embeddings.SyncBatchSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if math.IsNaN(c.Search.BM25Weight) || math.IsNaN(c.Search.SemanticWeight) {
		return fmt.Errorf("search weights must not be NaN")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
