package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json"}, &buf)

	l.Info().Msg("被过滤")
	l.Warn().Str("k", "v").Msg("保留")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "v", entry["k"])
	assert.Equal(t, "保留", entry["message"])
}

func TestNewNilWriterIsNop(t *testing.T) {
	l := New(Config{Level: "debug"}, nil)
	// 不应 panic
	l.Error().Msg("丢弃")
}

func TestComponentAndContext(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Config{Level: "debug", Format: "json"}, &buf), "scoring")

	ctx := WithContext(context.Background(), l)
	Ctx(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"scoring"`)
}

func TestInitWithFile(t *testing.T) {
	path := t.TempDir() + "/app.log"
	closer, err := InitWithFile(Config{Level: "info", Format: "pretty"}, path)
	require.NoError(t, err)

	Logger.Info().Str("k", "v").Msg("写入文件")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry), "文件中是 JSON")
	assert.Equal(t, "v", entry["k"])
}
