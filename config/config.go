package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del pipeline.
type Config struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Dedup      DedupConfig      `yaml:"dedup"`
	FastPath   FastPathConfig   `yaml:"fast_path"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Motivation MotivationConfig `yaml:"motivation"`
	Detection  DetectionConfig  `yaml:"detection"`
	Quotes     QuotesConfig     `yaml:"quotes"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// PipelineConfig controla el ciclo batch.
type PipelineConfig struct {
	IntervalSeconds         int `yaml:"interval_seconds"`
	Workers                 int `yaml:"workers"`
	DetectionTimeoutSeconds int `yaml:"detection_timeout_seconds"`
	SignalTTLHours          int `yaml:"signal_ttl_hours"`
	PredictorTTLHours       int `yaml:"predictor_ttl_hours"`
}

// DedupConfig controla las capas de deduplicación.
type DedupConfig struct {
	CrossSourceEnabled       bool    `yaml:"cross_source_enabled"`
	FuzzyEnabled             bool    `yaml:"fuzzy_enabled"`
	LookbackHours            int     `yaml:"lookback_hours"`
	CandidateLimit           int     `yaml:"candidate_limit"`
	TitleSimilarityThreshold float64 `yaml:"title_similarity_threshold"`
	PhraseOverlapThreshold   float64 `yaml:"phrase_overlap_threshold"`
	MaxKeyPhrases            int     `yaml:"max_key_phrases"`
}

// FastPathConfig controla el camino rápido de signals urgentes.
type FastPathConfig struct {
	ConfidenceThreshold      float64 `yaml:"confidence_threshold"`
	PredictionTimeframeHours int     `yaml:"prediction_timeframe_hours"`
}

// EvaluationConfig controla la captura de outcomes y el scoring.
type EvaluationConfig struct {
	BatchLimit int `yaml:"batch_limit"`
}

// MotivationConfig controla el subsistema de portfolios de analistas.
type MotivationConfig struct {
	Fork string `yaml:"fork"` // ai | agent | user
}

// DetectionConfig apunta al servicio de detección.
type DetectionConfig struct {
	BaseURL string `yaml:"base_url"`
}

// QuotesConfig apunta al servicio de cotizaciones.
type QuotesConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// RunInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.Pipeline.IntervalSeconds) * time.Second
}

// DetectionTimeout devuelve el timeout por llamada a detección.
func (c *Config) DetectionTimeout() time.Duration {
	return time.Duration(c.Pipeline.DetectionTimeoutSeconds) * time.Second
}

// SignalTTL devuelve la vida máxima de un signal pendiente.
func (c *Config) SignalTTL() time.Duration {
	return time.Duration(c.Pipeline.SignalTTLHours) * time.Hour
}

// PredictorTTL devuelve la vida de los predictors creados.
func (c *Config) PredictorTTL() time.Duration {
	return time.Duration(c.Pipeline.PredictorTTLHours) * time.Hour
}

// PredictionTimeframe devuelve el horizonte de las predicciones del fast path.
func (c *Config) PredictionTimeframe() time.Duration {
	return time.Duration(c.FastPath.PredictionTimeframeHours) * time.Hour
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DETECTION_BASE_URL"); v != "" {
		cfg.Detection.BaseURL = v
	}
	if v := os.Getenv("QUOTES_BASE_URL"); v != "" {
		cfg.Quotes.BaseURL = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Pipeline.IntervalSeconds <= 0 {
		cfg.Pipeline.IntervalSeconds = 60
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.DetectionTimeoutSeconds <= 0 {
		cfg.Pipeline.DetectionTimeoutSeconds = 60
	}
	if cfg.Pipeline.SignalTTLHours <= 0 {
		cfg.Pipeline.SignalTTLHours = 24
	}
	if cfg.Pipeline.PredictorTTLHours <= 0 {
		cfg.Pipeline.PredictorTTLHours = 24
	}
	if cfg.Dedup.LookbackHours <= 0 {
		cfg.Dedup.LookbackHours = 72
	}
	if cfg.Dedup.CandidateLimit <= 0 {
		cfg.Dedup.CandidateLimit = 100
	}
	if cfg.Dedup.TitleSimilarityThreshold <= 0 {
		cfg.Dedup.TitleSimilarityThreshold = 0.85
	}
	if cfg.Dedup.PhraseOverlapThreshold <= 0 {
		cfg.Dedup.PhraseOverlapThreshold = 0.7
	}
	if cfg.Dedup.MaxKeyPhrases <= 0 {
		cfg.Dedup.MaxKeyPhrases = 10
	}
	if cfg.FastPath.ConfidenceThreshold <= 0 {
		cfg.FastPath.ConfidenceThreshold = 0.90
	}
	if cfg.FastPath.PredictionTimeframeHours <= 0 {
		cfg.FastPath.PredictionTimeframeHours = 24
	}
	if cfg.Evaluation.BatchLimit <= 0 {
		cfg.Evaluation.BatchLimit = 100
	}
	if cfg.Motivation.Fork == "" {
		cfg.Motivation.Fork = "ai"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "signalbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
