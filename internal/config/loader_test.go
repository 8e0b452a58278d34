package config_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/okian/hookline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":4319")
				convey.So(cfg.OTLPAddr, convey.ShouldEqual, ":4318")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("HOOKLINE_ADDR", ":8080")
			_ = os.Setenv("HOOKLINE_QUEUE_SIZE", "500")
			_ = os.Setenv("HOOKLINE_WORKER_COUNT", "16")
			_ = os.Setenv("HOOKLINE_DEDUPE_SIZE", "5000")
			_ = os.Setenv("HOOKLINE_MAX_BODY_BYTES", "1024")
			_ = os.Setenv("HOOKLINE_OTLP_PRIVACY_TIER", "2")
			_ = os.Setenv("HOOKLINE_LOG_FORMAT", "json")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 5000)
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 1024)
				convey.So(cfg.OTLPPrivacyTier, convey.ShouldEqual, 2)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# collector
addr: ":9090"
otlp_addr: ":9091"  # logs receiver
queue_size: 3000
worker_count: 24
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("HOOKLINE_CONFIG", tmpFile)
			_ = os.Setenv("HOOKLINE_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")     // From file
				convey.So(cfg.OTLPAddr, convey.ShouldEqual, ":9091") // From file
				convey.So(cfg.QueueSize, convey.ShouldEqual, 3000)   // From file
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)   // Overridden by env
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 0)     // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("HOOKLINE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("HOOKLINE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("HOOKLINE_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with out of range values", func() {
			_ = os.Setenv("HOOKLINE_WORKER_COUNT", "0")
			_ = os.Setenv("HOOKLINE_OTLP_PRIVACY_TIER", "7")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "worker_count must be positive")
				convey.So(err.Error(), convey.ShouldContainSubstring, "otlp_privacy_tier")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading a YAML file with an empty addr", func() {
			tmpFile := createTempConfigFile("addr: \"\"\nworker_count: 4\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("HOOKLINE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return validation error for empty addr", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"HOOKLINE_CONFIG",
		"HOOKLINE_ADDR",
		"HOOKLINE_OTLP_ADDR",
		"HOOKLINE_QUEUE_SIZE",
		"HOOKLINE_WORKER_COUNT",
		"HOOKLINE_DEDUPE_SIZE",
		"HOOKLINE_MAX_BODY_BYTES",
		"HOOKLINE_OTLP_PRIVACY_TIER",
		"HOOKLINE_LOG_LEVEL",
		"HOOKLINE_LOG_FORMAT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "hookline-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
