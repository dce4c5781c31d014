package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeWithLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper.log")
	t.Setenv("LOG_FILE", path)

	Initialize("info")
	componentLogger := GetForComponent("logger_test")
	componentLogger.Info().Msg("file sink check")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "file sink check")
	require.Contains(t, string(data), "logger_test")
}

func TestInitializeWithoutLogFile(t *testing.T) {
	t.Setenv("LOG_FILE", "")

	Initialize("debug")
	logger := GetForComponent("logger_test")
	logger.Debug().Msg("console only")
}