package clockin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/clockin/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "clockin"
	}

	// go test changes the CWD to the test package directory, relative paths would not work.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("CLOCKIN_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("clockin binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "CLOCKIN_INTEGRATION"
		envBinary     = "CLOCKIN_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Runner returns a runner of the clockin binary on the fake backend with its own database.
func Runner(config Config, dbPath string) testutils.Runner {
	return testutils.Runner{
		Binary:     config.Binary,
		GlobalArgs: []string{"--backend", "fake", "--db-path", dbPath},
		Quiet:      true,
	}
}

// RunClockinCmd runs a clockin command against the fake backend with a specific db path.
func RunClockinCmd(ctx context.Context, config Config, dbPath, cmdArgs string) (stdout, stderr []byte, err error) {
	res, err := Runner(config, dbPath).Run(ctx, cmdArgs)
	return res.Stdout, res.Stderr, err
}

// RunClockinCmdArgs is like RunClockinCmd with pre-split arguments.
func RunClockinCmdArgs(ctx context.Context, config Config, dbPath string, args []string) (stdout, stderr []byte, err error) {
	res, err := Runner(config, dbPath).RunArgs(ctx, args...)
	return res.Stdout, res.Stderr, err
}
