package testinfra

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"

	"github.com/webhookhub/webhookhub/internal/util/testutil"
)

var (
	suiteCounter int64
	suiteCleanup sync.Once
	cfgSync      sync.Once
	cfg          *Config
)

type Config struct {
	TestInfra   bool
	PostgresURL string
	RabbitMQURL string
	cleanupFns  []func()
}

func initConfig() {
	v := viper.New()
	v.AutomaticEnv()

	configFile := os.Getenv("TEST_CONFIG_FILE")
	if configFile == "" {
		configFile = ".env.test"
	}

	if projectRoot, err := findProjectRoot(configFile); err == nil {
		v.SetConfigFile(filepath.Join(projectRoot, configFile))
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			panic(err)
		}
	}

	if v.GetBool("TESTINFRA") {
		rabbitmqURL := v.GetString("TEST_RABBITMQ_URL")
		if rabbitmqURL != "" && !strings.Contains(rabbitmqURL, "amqp://") {
			rabbitmqURL = "amqp://guest:guest@" + rabbitmqURL
		}
		cfg = &Config{
			TestInfra:   true,
			PostgresURL: v.GetString("TEST_POSTGRES_URL"),
			RabbitMQURL: rabbitmqURL,
		}
		return
	}

	cfg = &Config{}
}

func ReadConfig() *Config {
	cfgSync.Do(initConfig)
	return cfg
}

// Start marks the beginning of an integration test suite. The returned
// function must be deferred; the last suite to finish tears down any
// containers started on demand.
func Start(t *testing.T) func() {
	testutil.CheckIntegrationTest(t)
	atomic.AddInt64(&suiteCounter, 1)
	return func() {
		if atomic.AddInt64(&suiteCounter, -1) == 0 {
			suiteCleanup.Do(func() {
				if cfg != nil {
					for _, fn := range cfg.cleanupFns {
						if fn != nil {
							fn()
						}
					}
				}
			})
		}
	}
}

func findProjectRoot(configFile string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, configFile)); err == nil {
			return dir, nil
		}
		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	return "", os.ErrNotExist
}
