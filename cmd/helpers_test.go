// -- cmd/helpers_test.go --
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// testConfig builds a validated configuration on defaults with the file
// store pointed at a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("logger.level", "error")
	v.Set("store.data_dir", t.TempDir())

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	return cfg
}

// writeConfigFile writes a minimal valid config file pointing the file store
// at dataDir and returns its path.
func writeConfigFile(t *testing.T, dataDir string) string {
	t.Helper()

	cfgYAML := fmt.Sprintf(`logger:
  level: error
store:
  driver: file
  data_dir: %s
session:
  keywords:
    - golang developer
`, dataDir)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o644))
	return path
}

// syncBuffer is a mutex-guarded buffer for output written from another
// goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
