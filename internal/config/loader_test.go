package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/skillrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnv(t)

			cfg, err := config.Load()

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnv(t)
			t.Setenv("SKILLRANK_ADDR", ":8080")
			t.Setenv("SKILLRANK_STORE_DRIVER", "memory")
			t.Setenv("SKILLRANK_GLICKO_TAU", "0.3")
			t.Setenv("SKILLRANK_WORKER_COUNT", "16")
			t.Setenv("SKILLRANK_SCHEDULER_ENABLED", "false")

			cfg, err := config.Load()

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.GlickoTau, convey.ShouldEqual, 0.3)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.SchedulerEnabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			clearConfigEnv(t)
			path := writeConfig(t, `
# local development
addr: ":9090"
store_driver: postgres
postgres_dsn: "postgres://skillrank@localhost/skillrank"
schedule_hour: 4
leaderboard_cache_ttl_ms: 0
`)
			t.Setenv("SKILLRANK_CONFIG", path)

			cfg, err := config.Load()

			convey.Convey("Then it should merge the file with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.PostgresDSN, convey.ShouldEqual, "postgres://skillrank@localhost/skillrank")
				convey.So(cfg.ScheduleHour, convey.ShouldEqual, 4)
				convey.So(cfg.LeaderboardCacheTTLMS, convey.ShouldEqual, 0)
				convey.So(cfg.GlickoEpsilon, convey.ShouldEqual, 1e-6)
			})
		})

		convey.Convey("When both a file and env vars set a key", func() {
			clearConfigEnv(t)
			t.Setenv("SKILLRANK_CONFIG", writeConfig(t, "addr: \":9090\"\nschedule_hour: 4\n"))
			t.Setenv("SKILLRANK_SCHEDULE_HOUR", "6")

			cfg, err := config.Load()

			convey.Convey("Then env vars win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ScheduleHour, convey.ShouldEqual, 6)
			})
		})

		convey.Convey("When the file does not exist", func() {
			clearConfigEnv(t)
			t.Setenv("SKILLRANK_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			cfg, err := config.Load()

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file is not valid YAML", func() {
			clearConfigEnv(t)
			t.Setenv("SKILLRANK_CONFIG", writeConfig(t, "addr: [unterminated\n"))

			_, err := config.Load()

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a numeric env var is malformed", func() {
			clearConfigEnv(t)
			t.Setenv("SKILLRANK_WORKER_COUNT", "many")

			_, err := config.Load()

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When tau is not positive", func() {
			clearConfigEnv(t)
			t.Setenv("SKILLRANK_GLICKO_TAU", "-0.5")

			cfg, err := config.Load()

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

var configEnvVars = []string{
	"SKILLRANK_CONFIG",
	"SKILLRANK_ADDR",
	"SKILLRANK_STORE_DRIVER",
	"SKILLRANK_GLICKO_TAU",
	"SKILLRANK_WORKER_COUNT",
	"SKILLRANK_SCHEDULER_ENABLED",
	"SKILLRANK_SCHEDULE_HOUR",
}

// clearConfigEnv unsets the variables for this test and restores them after.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skillrank.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
