package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotcron/internal/jobs"
	"hotcron/internal/platform/logger"
	"hotcron/internal/shared"
)

type fakeService struct {
	snaps     []jobs.Snapshot
	reloadErr error
	triggered []int
}

func (f *fakeService) Snapshots() []jobs.Snapshot   { return f.snaps }
func (f *fakeService) Reload(context.Context) error { return f.reloadErr }
func (f *fakeService) TriggerJob(i int) error {
	if i >= len(f.snaps) {
		return shared.MarkKind(fmt.Errorf("job %d", i), shared.KindNotFound)
	}
	if !f.snaps[i].Armed {
		return errors.New("invalid schedule")
	}
	f.triggered = append(f.triggered, i)
	return nil
}

type sender struct{ sent []*bot.SendMessageParams }

func (s *sender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	s.sent = append(s.sent, p)
	return &models.Message{}, nil
}

func (s *sender) last() string {
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1].Text
}

func command(text string) *models.Update {
	return &models.Update{Message: &models.Message{Text: text, Chat: models.Chat{ID: 42}}}
}

func setup() (*fakeService, *sender, *Commands) {
	next := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	svc := &fakeService{snaps: []jobs.Snapshot{
		{Index: 0, ScheduleParams: "* * * * *", CommandToExecute: "echo ciao", Armed: true, Next: &next,
			LastResultOutput: "Child process exited with code 0"},
		{Index: 1, ScheduleParams: "bogus", CommandToExecute: "echo never", LastResultOutput: "invalid schedule"},
	}}
	return svc, &sender{}, New(svc, logger.Discard())
}

func TestCommands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/ping", "pong"},
		{"/start", "hotcron is running with 2 job(s). Commands: /jobs, /reload, /run N, /ping"},
		{"/reload", "reloaded, 2 job(s)"},
		{"/run 0", "job #0 started"},
		{"/run@hotcron_bot 0", "job #0 started"},
		{"/run 5", "no job #5"},
		{"/run 1", "cannot run: invalid schedule"},
		{"/run", "usage: /run N"},
		{"/run x", "usage: /run N"},
		{"/nope", "unknown command, try /jobs, /reload or /run N"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, s, c := setup()
			c.Handle(context.Background(), s, command(tt.text))
			require.Len(t, s.sent, 1)
			assert.Equal(t, tt.want, s.last())
			assert.Equal(t, int64(42), s.sent[0].ChatID)
		})
	}
}

func TestJobsListing(t *testing.T) {
	_, s, c := setup()
	c.Handle(context.Background(), s, command("/jobs"))
	assert.Equal(t, "#0 [idle] * * * * *  echo ciao\n"+
		"    next: 2026-01-02T03:04:00Z\n"+
		"    last: Child process exited with code 0\n"+
		"#1 [unarmed] bogus  echo never\n"+
		"    last: invalid schedule", s.last())

	svc, s, c := setup()
	svc.snaps = nil
	c.Handle(context.Background(), s, command("/jobs"))
	assert.Equal(t, "no jobs loaded", s.last())
}

func TestReloadFailure(t *testing.T) {
	svc, s, c := setup()
	svc.reloadErr = shared.ErrReloadCanceled
	c.Handle(context.Background(), s, command("/reload"))
	assert.Equal(t, "reload failed: reload canceled", s.last())
}

func TestIgnoresPlainText(t *testing.T) {
	_, s, c := setup()
	c.Handle(context.Background(), s, command("hello"))
	c.Handle(context.Background(), s, &models.Update{})
	assert.Empty(t, s.sent)
}
