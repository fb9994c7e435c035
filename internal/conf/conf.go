package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Bootstrap is the root of configs/config.yaml.
type Bootstrap struct {
	Server     *Server     `json:"server"`
	Data       *Data       `json:"data"`
	Gateway    *Gateway    `json:"gateway"`
	Scanner    *Scanner    `json:"scanner"`
	OCR        *OCR        `json:"ocr"`
	Classifier *Classifier `json:"classifier"`
	Quota      *Quota      `json:"quota"`
}

// Server holds the HTTP listener used for health and metrics.
type Server struct {
	HTTP struct {
		Network string   `json:"network"`
		Addr    string   `json:"addr"`
		Timeout Duration `json:"timeout"`
	} `json:"http"`
}

// Data holds storage settings.
type Data struct {
	Database struct {
		Driver       string   `json:"driver"`
		Source       string   `json:"source"`
		MaxConns     int32    `json:"max_conns"`
		QueryTimeout Duration `json:"query_timeout"`
	} `json:"database"`
	Redis struct {
		Network      string   `json:"network"`
		Addr         string   `json:"addr"`
		ReadTimeout  Duration `json:"read_timeout"`
		WriteTimeout Duration `json:"write_timeout"`
		BloomKey     string   `json:"bloom_key"`
		BloomBits    uint     `json:"bloom_bits"`
	} `json:"redis"`
}

// Gateway holds the NATS connection used to talk to the chat platform bridge.
type Gateway struct {
	URL            string   `json:"url"`
	Name           string   `json:"name"`
	QueueGroup     string   `json:"queue_group"`
	RequestTimeout Duration `json:"request_timeout"`
	ReconnectWait  Duration `json:"reconnect_wait"`
	MaxReconnects  int      `json:"max_reconnects"`
}

// Scanner holds admission and download settings.
type Scanner struct {
	MaxConcurrency  int64    `json:"max_concurrency"`
	MaxPixelArea    int64    `json:"max_pixel_area"`
	Whitelist       []string `json:"whitelist"`
	DownloadLimit   int64    `json:"download_limit"`
	DownloadTimeout Duration `json:"download_timeout"`
}

// OCR describes the external OCR engine process.
type OCR struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	// Timeout is zero by default: the engine runs until it exits.
	Timeout Duration `json:"timeout"`
	// WaitDelay bounds output collection after the engine exits or is killed.
	WaitDelay Duration `json:"wait_delay"`
}

// Classifier describes the remote visual classification service.
type Classifier struct {
	Enabled            bool     `json:"enabled"`
	Host               string   `json:"host"`
	Path               string   `json:"path"`
	Username           string   `json:"username"`
	Password           string   `json:"password"`
	Timeout            Duration `json:"timeout"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify"`
	MaxUploadBytes     int64    `json:"max_upload_bytes"`
	MinDimension       int      `json:"min_dimension"`
	// NearDuplicateDistance reuses a stored verdict for images whose pHash
	// differs by at most this many bits. Zero disables it; at most 3.
	NearDuplicateDistance int `json:"near_duplicate_distance"`
	Fields                struct {
		Models   string `json:"models"`
		User     string `json:"user"`
		Password string `json:"password"`
		File     string `json:"file"`
	} `json:"fields"`
}

// Quota holds the classification call quota reset schedule.
type Quota struct {
	ResetSpec string `json:"reset_spec"`
}

// GetEnabled reports whether remote classification is switched on.
func (c *Classifier) GetEnabled() bool {
	return c != nil && c.Enabled
}

// Validate checks the settings the process cannot start without.
func (b *Bootstrap) Validate() error {
	if b.Data == nil || b.Data.Database.Source == "" {
		return errors.New("conf: data.database.source is required")
	}
	if b.Scanner == nil || b.Scanner.MaxConcurrency <= 0 {
		return errors.New("conf: scanner.max_concurrency must be greater than 0")
	}
	if b.OCR == nil || b.OCR.Command == "" {
		return errors.New("conf: ocr.command is required")
	}
	if b.Gateway == nil || b.Gateway.URL == "" {
		return errors.New("conf: gateway.url is required")
	}
	if b.Classifier.GetEnabled() && b.Classifier.Host == "" {
		return errors.New("conf: classifier.host is required when classification is enabled")
	}
	if c := b.Classifier; c != nil && (c.NearDuplicateDistance < 0 || c.NearDuplicateDistance > 3) {
		return errors.New("conf: classifier.near_duplicate_distance must be between 0 and 3")
	}
	return nil
}

// Duration is a time.Duration that decodes from strings like "3s".
type Duration struct {
	time.Duration
}

// AsDuration returns the wrapped value.
func (d Duration) AsDuration() time.Duration {
	return d.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("conf: invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("conf: invalid duration %s", string(b))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
