package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("debug", "json").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, New("WARN", "json").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("invalid", "json").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("", "json").GetLevel())
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info", "json")
	log.Info().Str("venue", "binance").Msg("feed started")

	assert.Contains(t, buf.String(), `"venue":"binance"`)
	assert.Contains(t, buf.String(), `"message":"feed started"`)
}

func TestNewWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info", "console")
	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}
