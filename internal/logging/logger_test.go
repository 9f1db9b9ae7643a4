package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	Info().Str("station", "75650010").Msg("sync started")

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"station":"75650010"`)
	assert.Contains(t, out, "sync started")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestCtxAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	ctx := ContextWithRunID(context.Background(), "run-1")
	assert.Equal(t, "run-1", RunIDFromContext(ctx))

	Ctx(ctx).Info().Msg("window fetched")
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)

	assert.Equal(t, "", RunIDFromContext(context.Background()))
}

func TestSetLoggerAndWithComponent(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	Warn().Msg("direct")
	component := WithComponent("scheduler")
	component.Info().Msg("tick skipped")

	out := buf.String()
	assert.Contains(t, out, `"message":"direct"`)
	assert.Contains(t, out, `"component":"scheduler"`)
	assert.Contains(t, out, `"message":"tick skipped"`)
}
