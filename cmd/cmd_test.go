package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundi-booker/booking"
	"fundi-booker/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func clearConfig(t *testing.T) {
	chdir(t, t.TempDir())
	for _, k := range config.RunKeys {
		t.Setenv(k, "")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fundi dev (commit=none, built=unknown)\n", out)
}

func TestPlanOffline(t *testing.T) {
	clearConfig(t)

	out, err := execute(t, "plan", "--offline")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+len(booking.DefaultSchedule()))
	assert.Contains(t, lines[0], "WINDOW OPENS")
	assert.Equal(t, 1, strings.Count(out, "*"), "exactly one objective")
}

func TestRunNeedsConfig(t *testing.T) {
	clearConfig(t)

	_, err := execute(t, "run")
	require.ErrorIs(t, err, config.ErrMissingConfig)
}

func TestWatchRejectsBadCron(t *testing.T) {
	clearConfig(t)
	t.Setenv("EMAIL", "user@example.com")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("MONGO_URL", "memory://")
	t.Setenv("ACCOUNT_CODE", "ACC-1")

	_, err := execute(t, "watch", "--cron", "every now and then")
	assert.ErrorContains(t, err, "bad --cron")
}

func TestPlanStatus(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, cet)
	def := booking.ClassDefinition{Weekday: time.Monday, Hour: 16, Minute: 30, Name: "Fitness"}
	occ := booking.Plan(def, now, booking.DefaultWindowOffset)

	assert.Equal(t, "open", planStatus(occ, booking.BookedSet{}, now, 45*time.Minute))

	set := booking.NewBookedSet(nil)
	later := booking.Plan(def, time.Date(2026, 10, 21, 12, 0, 0, 0, cet), booking.DefaultWindowOffset)
	assert.Equal(t, "opens in 75h30m0s", planStatus(later, set, time.Date(2026, 10, 21, 12, 0, 0, 0, cet), 45*time.Minute))
}
