package nowplaying

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

type fakePlayback struct {
	mu      sync.Mutex
	current *track.Track
	elapsed time.Duration
	paused  bool
}

func (f *fakePlayback) Current() (track.Track, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return track.Track{}, false
	}
	return *f.current, true
}

func (f *fakePlayback) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elapsed
}

func (f *fakePlayback) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakePlayback) set(t *track.Track) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

func (f *fakePlayback) setPaused(paused bool) {
	f.mu.Lock()
	f.paused = paused
	f.mu.Unlock()
}

type fakePresenter struct {
	mu         sync.Mutex
	sends      int
	edits      int
	deletes    []MessageRef
	lastStatus Status
	lastAttach bool
	after      []MessageInfo
	nextID     int
}

func (f *fakePresenter) Send(ctx context.Context, channelID string, status Status, attachCover bool) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	f.nextID++
	f.lastStatus = status
	f.lastAttach = attachCover
	return MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m-%d", f.nextID)}, nil
}

func (f *fakePresenter) Edit(ctx context.Context, ref MessageRef, status Status, attachCover bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	f.lastStatus = status
	f.lastAttach = attachCover
	return nil
}

func (f *fakePresenter) Delete(ctx context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return nil
}

func (f *fakePresenter) MessagesAfter(ctx context.Context, ref MessageRef) ([]MessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.after, nil
}

func (f *fakePresenter) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits
}

type fakeTrigger struct {
	channel    string
	presenter  *fakePresenter
	responses  int
	informed   []string
	respondRef *MessageRef
}

func (f *fakeTrigger) ChannelID() string { return f.channel }

func (f *fakeTrigger) Respond(ctx context.Context, status Status, attachCover bool) (MessageRef, error) {
	f.responses++
	f.presenter.mu.Lock()
	f.presenter.lastStatus = status
	f.presenter.lastAttach = attachCover
	f.presenter.mu.Unlock()
	if f.respondRef != nil {
		return *f.respondRef, nil
	}
	f.presenter.mu.Lock()
	f.presenter.nextID++
	ref := MessageRef{ChannelID: f.channel, MessageID: fmt.Sprintf("m-%d", f.presenter.nextID)}
	f.presenter.mu.Unlock()
	return ref, nil
}

func (f *fakeTrigger) Inform(ctx context.Context, text string) error {
	f.informed = append(f.informed, text)
	return nil
}

type fakeArt struct{}

func (fakeArt) CoverArtFile(ctx context.Context, coverID, guildID string) (string, error) {
	return "cache/" + guildID + "/" + coverID + ".jpg", nil
}

func TestRefresher_NothingPlaying(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{}
	refresher := New("guild-1", playback, presenter, nil, Options{})

	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))
	assert.Equal(t, []string{"Nothing is currently playing."}, trigger.informed)

	// Without a trigger there is nobody to tell; silently do nothing.
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), nil, false))
	assert.Equal(t, 0, presenter.sends)
	assert.Equal(t, 0, presenter.edits)
}

func TestRefresher_TriggerCreatesThenEditsInPlace(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{
		current: &track.Track{ID: "a", Title: "A", CoverID: "c-1", Duration: 3 * time.Minute},
		elapsed: time.Minute,
	}
	refresher := New("guild-1", playback, presenter, fakeArt{}, Options{})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}

	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))
	assert.Equal(t, 1, trigger.responses)
	assert.True(t, presenter.lastAttach, "first message carries the cover")
	assert.Equal(t, "cache/guild-1/c-1.jpg", presenter.lastStatus.CoverPath)

	// Periodic refresh edits in place without re-uploading the cover.
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), nil, false))
	assert.Equal(t, 1, presenter.edits)
	assert.False(t, presenter.lastAttach)
	assert.Equal(t, 0, presenter.sends)
}

func TestRefresher_ElapsedCappedAtDuration(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{
		current: &track.Track{ID: "a", Duration: time.Minute},
		elapsed: 5 * time.Minute,
	}
	refresher := New("guild-1", playback, presenter, nil, Options{})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}

	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))
	assert.Equal(t, time.Minute, presenter.lastStatus.Elapsed)
}

func TestRefresher_TrackChangeReattachesCover(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}

	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))

	playback.set(&track.Track{ID: "b"})
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), nil, false))
	assert.Equal(t, 1, presenter.edits)
	assert.True(t, presenter.lastAttach, "a new track needs its cover attached")
}

func TestRefresher_TriggerReplyDeletesPrevious(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{})

	first := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), first, false))

	second := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), second, false))

	require.Len(t, presenter.deletes, 1)
	assert.Equal(t, "m-1", presenter.deletes[0].MessageID)
}

func TestRefresher_TriggerReplyKeepsOwnMessage(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{})

	ref := MessageRef{ChannelID: "ch-1", MessageID: "m-same"}
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter, respondRef: &ref}

	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))
	assert.Empty(t, presenter.deletes, "the trigger's own response must not be deleted")
}

func TestRefresher_ForceCreateRecreatesAtBottom(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}

	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), nil, true))

	assert.Equal(t, 1, presenter.sends)
	assert.True(t, presenter.lastAttach, "a recreated message carries the cover")
	require.Len(t, presenter.deletes, 1)
	assert.Equal(t, "m-1", presenter.deletes[0].MessageID)
}

func TestRefresher_UpdateWithoutContextIsNoop(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{})

	require.NoError(t, refresher.UpdateOrCreate(context.Background(), nil, false))
	assert.Equal(t, 0, presenter.sends)
	assert.Equal(t, 0, presenter.edits)
}

func TestRefresher_Scrolled(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))

	// A few short lines of chatter are not enough.
	presenter.after = []MessageInfo{
		{Content: "nice"},
		{Content: "one\ntwo"},
	}
	assert.False(t, refresher.Scrolled(context.Background()))

	// Attachments and embeds eat the screen.
	presenter.after = []MessageInfo{
		{Attachments: 1},
		{Embeds: 2},
		{Stickers: 1},
		{Content: "a\nb\nc"},
	}
	assert.True(t, refresher.Scrolled(context.Background()))
}

func TestMessageInfo_Weight(t *testing.T) {
	tests := []struct {
		name     string
		msg      MessageInfo
		expected int
	}{
		{"single line", MessageInfo{Content: "hi"}, 1},
		{"empty", MessageInfo{}, 1},
		{"three lines", MessageInfo{Content: "a\nb\nc"}, 3},
		{"attachment", MessageInfo{Content: "a\nb", Attachments: 1}, 8},
		{"embed", MessageInfo{Embeds: 1}, 8},
		{"sticker", MessageInfo{Stickers: 2}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.msg.weight())
		})
	}
}

func TestRefresher_LoopRefreshesAndSelfTerminates(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{Interval: 10 * time.Millisecond})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))

	refresher.EnsureStarted()
	refresher.EnsureStarted() // second start must not spawn another loop
	assert.True(t, refresher.Running())

	assert.Eventually(t, func() bool {
		return presenter.editCount() >= 1
	}, time.Second, 5*time.Millisecond)

	// Once nothing is playing the loop winds itself down.
	playback.set(nil)
	assert.Eventually(t, func() bool {
		return !refresher.Running()
	}, time.Second, 5*time.Millisecond)
}

func TestRefresher_LoopIdlesWhilePaused(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}, paused: true}
	refresher := New("guild-1", playback, presenter, nil, Options{Interval: 10 * time.Millisecond})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))

	refresher.EnsureStarted()

	// The frozen message must not be re-rendered while paused.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, presenter.editCount())
	assert.True(t, refresher.Running(), "the loop stays alive through a pause")

	// Resuming playback picks the refreshes back up.
	playback.setPaused(false)
	assert.Eventually(t, func() bool {
		return presenter.editCount() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestRefresher_TeardownStopsLoopAndDeletesMessage(t *testing.T) {
	presenter := &fakePresenter{}
	playback := &fakePlayback{current: &track.Track{ID: "a"}}
	refresher := New("guild-1", playback, presenter, nil, Options{Interval: 10 * time.Millisecond})
	trigger := &fakeTrigger{channel: "ch-1", presenter: presenter}
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), trigger, false))

	refresher.EnsureStarted()
	refresher.Teardown(context.Background())

	assert.False(t, refresher.Running())
	require.Len(t, presenter.deletes, 1)

	// A fresh start after teardown needs a trigger again.
	require.NoError(t, refresher.UpdateOrCreate(context.Background(), nil, false))
	assert.Equal(t, 0, presenter.sends)
}
