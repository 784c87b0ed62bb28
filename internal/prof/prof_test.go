package prof

import (
	"context"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

type captureLogger struct {
	log.Logger
	infos, warns, errs []string
}

func (c *captureLogger) Info(_ context.Context, msg string, _ ...any) { c.infos = append(c.infos, msg) }
func (c *captureLogger) Warn(_ context.Context, msg string, _ ...any) { c.warns = append(c.warns, msg) }
func (c *captureLogger) Error(_ context.Context, _ error, msg string, _ ...any) {
	c.errs = append(c.errs, msg)
}

func TestStart_Disabled(t *testing.T) {
	var active []bool
	c := &captureLogger{Logger: log.Nop()}
	ctx := log.WithContext(context.Background(), c)

	stop, err := Start(ctx, Options{
		ServerAddress: "http://pyroscope:4040",
		OnActive:      func(b bool) { active = append(active, b) },
	})
	require.NoError(t, err)
	require.NotNil(t, stop)
	stop()
	stop()

	assert.Equal(t, []bool{false}, active)
	assert.Equal(t, []string{"pyroscope disabled"}, c.infos)
}

func TestStart_EmptyServerAddress(t *testing.T) {
	var active []bool
	c := &captureLogger{Logger: log.Nop()}
	ctx := log.WithContext(context.Background(), c)

	stop, err := Start(ctx, Options{
		Enabled:  true,
		AppName:  "api",
		OnActive: func(b bool) { active = append(active, b) },
	})
	require.Error(t, err)
	require.NotNil(t, stop, "stop is usable after an error")
	assert.NotPanics(t, stop)

	assert.Equal(t, []bool{false}, active)
	assert.Equal(t, []string{"pyroscope options"}, c.errs)
}

func TestStart_NoLoggerInContext(t *testing.T) {
	stop, err := Start(context.Background(), Options{})
	require.NoError(t, err)
	stop()
}

func TestConfig(t *testing.T) {
	opts := Options{
		AppName:       "linnemanlabs-api",
		ServerAddress: "https://profiles.example.net",
		TenantID:      "tenant-1",
		Tags:          map[string]string{"env": "prod"},
	}

	cfg := config(context.Background(), log.Nop(), opts)
	assert.Equal(t, "linnemanlabs-api", cfg.ApplicationName)
	assert.Equal(t, "https://profiles.example.net", cfg.ServerAddress)
	assert.Equal(t, "tenant-1", cfg.TenantID)
	assert.Equal(t, "prod", cfg.Tags["env"])
	assert.Contains(t, cfg.ProfileTypes, pyroscope.ProfileCPU)
	assert.Contains(t, cfg.ProfileTypes, pyroscope.ProfileGoroutines)
	assert.Nil(t, cfg.HTTPHeaders)

	opts.AuthToken = "s3cret"
	cfg = config(context.Background(), log.Nop(), opts)
	assert.Equal(t, "Bearer s3cret", cfg.HTTPHeaders["Authorization"])
}

func TestPyroLogger_Levels(t *testing.T) {
	c := &captureLogger{Logger: log.Nop()}
	p := pyroLogger{ctx: context.Background(), L: c}

	p.Infof("uploaded %d profiles", 3)
	p.Debugf("noise %s", "x")
	p.Errorf("upload failed: %s", "timeout")

	assert.Equal(t, []string{"uploaded 3 profiles"}, c.infos)
	assert.Equal(t, []string{"upload failed: timeout"}, c.warns)
	assert.Empty(t, c.errs)
}
