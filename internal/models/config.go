package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// OCR config
	OCR OCRConfig `yaml:"ocr"`

	// Processing config
	Processing ProcessingConfig `yaml:"processing"`
}

// OCRConfig represents OCR-engine configuration
type OCRConfig struct {
	Engine   string `yaml:"engine"`    // "mokuro" or "tesseract"
	Binary   string `yaml:"binary"`    // mokuro CLI path (default "mokuro")
	Language string `yaml:"language"`  // tesseract language (default "jpn")
	CacheDir string `yaml:"cache_dir"` // model weight cache (HF_HOME)
	Offline  bool   `yaml:"offline"`   // forbid model downloads at request time
	ForceCPU bool   `yaml:"force_cpu"`
}

// ProcessingConfig tunes the batch pipeline.
type ProcessingConfig struct {
	ChunkSize      int  `yaml:"chunk_size"`       // pages per parallel chunk
	MaxParallel    int  `yaml:"max_parallel"`     // concurrent chunks
	MaxImageHeight int  `yaml:"max_image_height"` // resize threshold in px
	JPEGQuality    int  `yaml:"jpeg_quality"`
	BlankVariance  float64 `yaml:"blank_variance_threshold"`
	SkipBlankCheck bool `yaml:"skip_blank_check"`
	MaxUploadMB    int  `yaml:"max_upload_mb"`
}

// ApplyDefaults fills unset processing knobs with the values the pipeline was
// tuned for.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.OCR.Engine == "" {
		c.OCR.Engine = "mokuro"
	}
	if c.OCR.Binary == "" {
		c.OCR.Binary = "mokuro"
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "jpn"
	}
	if c.Processing.ChunkSize == 0 {
		c.Processing.ChunkSize = 10
	}
	if c.Processing.MaxParallel == 0 {
		c.Processing.MaxParallel = 3
	}
	if c.Processing.MaxImageHeight == 0 {
		c.Processing.MaxImageHeight = 1600
	}
	if c.Processing.JPEGQuality == 0 {
		c.Processing.JPEGQuality = 85
	}
	if c.Processing.BlankVariance == 0 {
		c.Processing.BlankVariance = 100
	}
	if c.Processing.MaxUploadMB == 0 {
		c.Processing.MaxUploadMB = 100
	}
}
