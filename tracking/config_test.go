package tracking

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.MaxAttempts, test.ShouldEqual, 100)
	test.That(t, cfg.RotationStdDeg, test.ShouldEqual, 5.0)
	test.That(t, cfg.FrameTimeout, test.ShouldEqual, time.Minute)
	test.That(t, cfg.PollInterval, test.ShouldEqual, time.Second)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	cfg.PollInterval = 0
	cfg.Align.MaxIterations = -1
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_attempts must be positive")
	test.That(t, err.Error(), test.ShouldContainSubstring, "poll_interval must be positive")
	test.That(t, err.Error(), test.ShouldContainSubstring, "align: max_iterations must be positive")
}

func TestDecodeConfig(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		cfg, unused, err := DecodeConfig(map[string]interface{}{
			"max_attempts":  20.0,
			"frame_timeout": "30s",
			"poll_interval": float64(250 * time.Millisecond),
			"seed":          42,
			"align":         map[string]interface{}{"epsilon": 1e-4},
			"show_guess":    true,
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, unused, test.ShouldResemble, []string{"show_guess"})
		test.That(t, cfg.MaxAttempts, test.ShouldEqual, 20)
		test.That(t, cfg.FrameTimeout, test.ShouldEqual, 30*time.Second)
		test.That(t, cfg.PollInterval, test.ShouldEqual, 250*time.Millisecond)
		test.That(t, cfg.Seed, test.ShouldEqual, int64(42))
		test.That(t, cfg.Align.Epsilon, test.ShouldEqual, 1e-4)
		test.That(t, cfg.Align.MaxIterations, test.ShouldEqual, 50)
		test.That(t, cfg.RotationStdDeg, test.ShouldEqual, 5.0)
	})

	t.Run("nil attributes", func(t *testing.T) {
		cfg, unused, err := DecodeConfig(nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, unused, test.ShouldBeEmpty)
		test.That(t, cfg, test.ShouldResemble, DefaultConfig())
	})

	t.Run("bad values", func(t *testing.T) {
		_, _, err := DecodeConfig(map[string]interface{}{"frame_timeout": "soon"})
		test.That(t, err, test.ShouldNotBeNil)
		_, _, err = DecodeConfig(map[string]interface{}{"max_attempts": -3})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "max_attempts")
	})
}
