package main

import(
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/pano"
)

func execute(args ...string) (string, error) {
	root := newRootCmd(&app{})
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestConfigCommand(t *testing.T) {
	out, err := execute("config", "--warp", "spherical", "--blend", "multiband")
	require.NoError(t, err)
	cfg, err := pano.ParseConfig([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "spherical", cfg.WarpType)
	assert.Equal(t, "multiband", cfg.BlendType)

	out, err = execute("config", "--affine")
	require.NoError(t, err)
	cfg, err = pano.ParseConfig([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, pano.AffineConfig(), cfg)

	_, err = execute("config", "--seam", "graphcut")
	assert.Error(t, err)
}

func TestAffineWithConfigFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "pano.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("blend_type: none\n"), 0644))

	out, err := execute("config", "--affine", "-c", fn)
	require.NoError(t, err)
	cfg, err := pano.ParseConfig([]byte(out))
	require.NoError(t, err)

	want := pano.AffineConfig()
	want.BlendType = "none"
	assert.Equal(t, want, cfg)
}

func TestRunNeedsTwoCameras(t *testing.T) {
	_, err := execute("run", t.TempDir())
	assert.Error(t, err)
}

func TestDemoStitchesTheCropsRig(t *testing.T) {
	dir := t.TempDir()
	_, err := execute("demo", "-o", dir, "--frames", "2", "--hdr")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "cam2", "frame-00001.png"))
	assert.FileExists(t, filepath.Join(dir, "pano-00000.png"))
	assert.FileExists(t, filepath.Join(dir, "pano-00001.png"))
	assert.FileExists(t, filepath.Join(dir, "pano-00001.hdr"))
}
