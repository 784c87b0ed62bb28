package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVCSDirtyTriState(t *testing.T) {
	t.Cleanup(func() { VCSDirty = nil })

	VCSDirty = nil
	assert.Nil(t, Get().VCSDirty)

	trueVal := true
	VCSDirty = &trueVal
	info := Get()
	require.NotNil(t, info.VCSDirty)
	assert.True(t, *info.VCSDirty)

	falseVal := false
	VCSDirty = &falseVal
	info = Get()
	require.NotNil(t, info.VCSDirty)
	assert.False(t, *info.VCSDirty)
}

func TestApplySettings_FillsUnset(t *testing.T) {
	info := Info{Commit: "none"}
	applySettings(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "GOOS", Value: "linux"},
	})

	assert.Equal(t, "0123456789abcdef0123", info.Commit)
	assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildDate)
	assert.Equal(t, "2026-10-01T12:00:00Z", info.CommitDate)
	require.NotNil(t, info.VCSDirty)
	assert.True(t, *info.VCSDirty)
}

func TestApplySettings_LdflagsWin(t *testing.T) {
	info := Info{Commit: "abc123", BuildDate: "2026-01-01", CommitDate: "2025-12-31"}
	applySettings(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "fff"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "bogus"},
	})

	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-01", info.BuildDate)
	assert.Equal(t, "2025-12-31", info.CommitDate)
	assert.Nil(t, info.VCSDirty)
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "0123456789ab", Info{Commit: "0123456789abcdef"}.ShortCommit())
	assert.Equal(t, "none", Info{Commit: "none"}.ShortCommit())
}

func TestLogValues(t *testing.T) {
	dirty := false
	kv := Info{Version: "1.0.0", Commit: "abc", VCSDirty: &dirty}.LogValues()

	assert.Len(t, kv, 10)
	assert.Equal(t, "build_version", kv[0])
	assert.Equal(t, "1.0.0", kv[1])
	assert.Equal(t, "vcs_dirty", kv[8])
	assert.Equal(t, false, kv[9])
}
