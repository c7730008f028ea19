package tracking

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/markertrack/rimage"
)

// Config controls tracking.
type Config struct {
	// MaxAttempts bounds the alignments tried per target and frame, the first one included.
	MaxAttempts int `json:"max_attempts"`
	// RotationStdDeg is the standard deviation, in degrees, of the rotation of a retry guess.
	RotationStdDeg float64 `json:"rotation_std_deg"`
	// PerturbScale multiplies the template width and height to get the standard deviations of
	// the translation of a retry guess.
	PerturbScale float64 `json:"perturb_scale"`
	// BlurSigma is the Gaussian blur applied to every frame before alignment. 0 disables it.
	BlurSigma    float64       `json:"blur_sigma"`
	FrameTimeout time.Duration `json:"frame_timeout"`
	PollInterval time.Duration `json:"poll_interval"`
	// Seed seeds the retry perturbations. 0 seeds from the current time.
	Seed int64 `json:"seed"`
	// Parallel tracks the targets of a frame concurrently.
	Parallel bool               `json:"parallel"`
	Align    rimage.AlignConfig `json:"align"`
}

// DefaultConfig returns 100 attempts, a 5 degree rotation perturbation, one template size of
// translation perturbation, a 60 second frame timeout polled every second and the default
// alignment settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    100,
		RotationStdDeg: 5,
		PerturbScale:   1,
		BlurSigma:      1,
		FrameTimeout:   time.Minute,
		PollInterval:   time.Second,
		Align:          rimage.DefaultAlignConfig(),
	}
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate() error {
	var err error
	if cfg.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.Errorf("max_attempts must be positive, got %d", cfg.MaxAttempts))
	}
	if cfg.RotationStdDeg < 0 {
		err = multierr.Append(err, errors.Errorf("rotation_std_deg cannot be negative, got %v", cfg.RotationStdDeg))
	}
	if cfg.PerturbScale < 0 {
		err = multierr.Append(err, errors.Errorf("perturb_scale cannot be negative, got %v", cfg.PerturbScale))
	}
	if cfg.BlurSigma < 0 {
		err = multierr.Append(err, errors.Errorf("blur_sigma cannot be negative, got %v", cfg.BlurSigma))
	}
	if cfg.FrameTimeout <= 0 {
		err = multierr.Append(err, errors.Errorf("frame_timeout must be positive, got %v", cfg.FrameTimeout))
	}
	if cfg.PollInterval <= 0 {
		err = multierr.Append(err, errors.Errorf("poll_interval must be positive, got %v", cfg.PollInterval))
	}
	if alignErr := cfg.Align.Validate(); alignErr != nil {
		err = multierr.Append(err, errors.Wrap(alignErr, "align"))
	}
	return err
}

// DecodeConfig decodes loosely typed attributes on top of DefaultConfig. Durations may be given as
// strings such as "30s" or as nanoseconds. The names of attributes that match no field are
// returned alongside the config.
func DecodeConfig(attributes map[string]interface{}) (Config, []string, error) {
	cfg := DefaultConfig()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &cfg,
		Metadata:   &md,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return Config{}, nil, errors.Wrap(err, "cannot decode tracking config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, md.Unused, err
	}
	return cfg, md.Unused, nil
}
