package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("FOO", "")
	assert.Equal(t, "bar", GetEnv("FOO", "bar"))
	t.Setenv("FOO", "baz")
	assert.Equal(t, "baz", GetEnv("FOO", "bar"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NUM", "")
	assert.Equal(t, 42, GetEnvInt("NUM", 42))
	t.Setenv("NUM", "100")
	assert.Equal(t, 100, GetEnvInt("NUM", 42))
	t.Setenv("NUM", "notint")
	assert.Equal(t, 7, GetEnvInt("NUM", 7))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "")
	assert.True(t, GetEnvBool("FLAG", true))
	t.Setenv("FLAG", "false")
	assert.False(t, GetEnvBool("FLAG", true))
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("THRESHOLD", "")
	assert.Equal(t, 0.7, GetEnvFloat("THRESHOLD", 0.7))
	t.Setenv("THRESHOLD", "0.55")
	assert.Equal(t, 0.55, GetEnvFloat("THRESHOLD", 0.7))
	t.Setenv("THRESHOLD", "notafloat")
	assert.Equal(t, 0.6, GetEnvFloat("THRESHOLD", 0.6))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TIMEOUT", "")
	assert.Equal(t, 5*time.Second, GetEnvDuration("TIMEOUT", 5*time.Second))
	t.Setenv("TIMEOUT", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("TIMEOUT", 5*time.Second))
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, GetLogLevel())
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, logrus.WarnLevel, GetLogLevel())
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, logrus.InfoLevel, GetLogLevel())
}

func TestLoadEnv_NoFile(t *testing.T) {
	// Should not panic or error; just log debug
	logger := logrus.New()
	LoadEnv(logger)
}
