package assetcache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/pkg/errors"
)

func TestDefaultManifest(t *testing.T) {
	m := assetcache.DefaultManifest()
	assert.Equal(t, "v1", m.Version)
	assert.Equal(t, "/offline.html", m.OfflinePage)
	assert.Contains(t, m.All(), "/offline.html")
	assert.Contains(t, m.All(), "/index.html")
}

func TestManifestAllDeduplicates(t *testing.T) {
	m, err := assetcache.ParseManifest([]byte(`
version: v3
offline_page: /offline.html
resources:
  - /
  - /offline.html
  - /
  - /app.js
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/offline.html", "/app.js"}, m.All())
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{"missing version", "resources: [/]", errors.IsValidationError},
		{"no resources", "version: v1", errors.IsValidationError},
		{"empty entry", "version: v1\nresources: [\"/\", \"  \"]", errors.IsValidationError},
		{"bad yaml", "version: [", func(err error) bool {
			var ce *errors.ConfigError
			return errors.As(err, &ce)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assetcache.ParseManifest([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v2\nresources: [/a.js]\n"), 0o600))

	m, err := assetcache.LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Version)
	assert.Equal(t, []string{"/a.js"}, m.All())

	_, err = assetcache.LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
