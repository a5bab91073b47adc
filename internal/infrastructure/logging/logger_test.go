package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		level   zapcore.Level
	}{
		{"production", DefaultConfig(), false, zapcore.InfoLevel},
		{"development", DevelopmentConfig(), false, zapcore.DebugLevel},
		{"cli", CLIConfig("warn"), false, zapcore.WarnLevel},
		{"empty outputs", Config{Level: "error"}, false, zapcore.ErrorLevel},
		{"bad level", Config{Level: "loud"}, true, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestFallbacks(t *testing.T) {
	assert.NotNil(t, NewDefault().Logger)
	assert.NotNil(t, NewDevelopment().Logger)
	assert.False(t, NewNop().Core().Enabled(zapcore.ErrorLevel))
}

func TestEncodingFormat(t *testing.T) {
	assert.Equal(t, "console", encodingFormat(true))
	assert.Equal(t, "json", encodingFormat(false))
	assert.Equal(t, "message", encoderConfig(false).MessageKey)
	assert.Equal(t, "M", encoderConfig(true).MessageKey)
}
