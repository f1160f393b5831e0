package telemetry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		contains string
	}{
		{name: "default", cfg: Config{}, contains: "AlwaysOnSampler"},
		{name: "never", cfg: Config{Sampler: "never"}, contains: "AlwaysOffSampler"},
		{name: "ratio", cfg: Config{Sampler: "ratio", SamplerRatio: 0.5}, contains: "ParentBased"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, sampler(tt.cfg).Description(), tt.contains)
		})
	}
}

func TestWithSpan_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := WithSpan(context.Background(), "test", func(context.Context) error { return want })
	assert.Equal(t, want, err)

	called := false
	err = WithSpan(context.Background(), "test", func(context.Context) error {
		called = true
		return nil
	}, SkillAttr("1"))
	assert.NoError(t, err)
	assert.True(t, called)
}
