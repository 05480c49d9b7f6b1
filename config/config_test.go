package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
classpath:
  - lib/a.jar
  - /opt/classes
verbosity: 2
workers: 8
format: json
`))
	require.NoError(t, err)
	require.Equal(t, []string{"lib/a.jar", "/opt/classes"}, cfg.Classpath)
	require.Equal(t, 2, cfg.Verbosity)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "json", cfg.Format)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cfg, err = Parse([]byte("workers: 3\n"))
	require.NoError(t, err)
	require.Equal(t, "java", cfg.Format)
	require.Equal(t, 3, cfg.Workers)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "threads: 4\n",
		"unknown format":   "format: xml\n",
		"negative workers": "workers: -1\n",
		"negative verbose": "verbosity: -2\n",
		"empty entry":      "classpath: [\"\"]\n",
		"wrong type":       "workers: many\n",
		"classpath mapping": "classpath: {a: b}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classpath: [classes, /abs/lib.jar]\nformat: line\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, cfg.Path)
	require.Equal(t, "line", cfg.Format)
	require.Equal(t, []string{filepath.Join(dir, "classes"), "/abs/lib.jar"}, cfg.Classpath)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(DefaultFile, []byte("verbosity: 1\n"), 0o644))
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Verbosity)
	require.Equal(t, DefaultFile, cfg.Path)

	require.NoError(t, os.WriteFile(DefaultFile, []byte("format: [\n"), 0o644))
	_, err = Load("")
	require.ErrorContains(t, err, DefaultFile)
}
