package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := New()
	entry := log.WithComponent("auctioneer")

	v, ok := entry.Data["component"]
	check.True(t, ok)
	check.Equal(t, "auctioneer", v.(string))
}

func TestJSONOutputUsesRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New()
	log.SetOutput(&buf)

	log.WithComponent("concentrator").WithField("agent_id", "a1").Info("bid received")

	var line map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	check.Equal(t, "bid received", line["message"].(string))
	check.Equal(t, "info", line["level"].(string))
	check.Equal(t, "concentrator", line["component"].(string))
	check.NotNil(t, line["timestamp"])
}

func TestConfigure(t *testing.T) {
	t.Setenv(LevelEnv, "")

	log := New()
	check.NoError(t, log.Configure(Options{Level: "debug", Format: "text", Output: "stderr"}))
	check.Equal(t, logrus.DebugLevel, log.GetLevel())

	check.Error(t, log.Configure(Options{Level: "loud"}))
	check.Error(t, log.Configure(Options{Level: "info", Format: "xml"}))
}

func TestConfigureEnvOverridesLevel(t *testing.T) {
	t.Setenv(LevelEnv, "warn")

	log := New()
	check.NoError(t, log.Configure(Options{Level: "debug"}))
	check.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv(LevelEnv, "")
	dir := t.TempDir()

	log := New()
	check.NoError(t, log.Configure(Options{Output: filepath.Join(dir, "plain.log")}))
	check.NoError(t, log.Configure(Options{Output: filepath.Join(dir, "rotated.log"), MaxSizeMB: 10, MaxAge: 7}))
}

func TestDiscard(t *testing.T) {
	entry := Discard()
	entry.Info("dropped")
	check.NotNil(t, entry.Logger)
}
