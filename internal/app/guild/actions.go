package guild

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/hiraico/subwoofer/internal/app/autoplay"
	"github.com/hiraico/subwoofer/internal/app/nowplaying"
	"github.com/hiraico/subwoofer/internal/app/playback"
	"github.com/hiraico/subwoofer/internal/domain/track"
)

// Action identifies a user-facing playback command.
type Action string

const (
	ActionPlay        Action = "play"
	ActionSkip        Action = "skip"
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
	ActionStop        Action = "stop"
	ActionClearQueue  Action = "clear-queue"
	ActionShowQueue   Action = "show-queue"
	ActionNowPlaying  Action = "now-playing"
	ActionSetAutoplay Action = "set-autoplay"
)

// Command is one playback command addressed to a guild.
type Command struct {
	Action  Action
	GuildID string

	// Track is the track to enqueue, for ActionPlay. Nil resumes queue
	// playback without enqueueing.
	Track *track.Track
	// Mode and SourceID configure autoplay, for ActionSetAutoplay.
	Mode     autoplay.Mode
	SourceID string

	// Sink is the guild's voice connection for commands that touch it.
	Sink playback.Sink
	// Trigger is the invoking chat command, when the response should be
	// posted as its reply.
	Trigger nowplaying.Trigger
}

// Dispatch routes a command to the guild's coordinator.
func (r *Registry) Dispatch(ctx context.Context, cmd Command) error {
	if cmd.GuildID == "" {
		return errors.New("command without a guild")
	}
	g, err := r.Guild(cmd.GuildID)
	if err != nil {
		return err
	}

	switch cmd.Action {
	case ActionPlay:
		if cmd.Track != nil {
			g.Queue.Enqueue(*cmd.Track)
		}
		if err := g.Session.PlayNext(ctx, cmd.Sink); err != nil {
			return err
		}
		return g.Display.UpdateOrCreate(ctx, cmd.Trigger, false)

	case ActionSkip:
		if err := g.Session.Skip(cmd.Sink); err != nil {
			return err
		}
		return g.Display.UpdateOrCreate(ctx, cmd.Trigger, false)

	case ActionPause:
		return g.Session.Pause(cmd.Sink)

	case ActionResume:
		return g.Session.Resume(cmd.Sink)

	case ActionStop:
		return g.Session.StopAndDisconnect(ctx, cmd.Sink)

	case ActionClearQueue:
		g.Queue.Clear()
		return nil

	case ActionShowQueue:
		if cmd.Trigger == nil {
			return errors.New("show-queue needs a trigger to respond to")
		}
		return cmd.Trigger.Inform(ctx, formatQueue(g.Queue.Tracks()))

	case ActionNowPlaying:
		return g.Display.UpdateOrCreate(ctx, cmd.Trigger, true)

	case ActionSetAutoplay:
		g.SetAutoplay(cmd.Mode, cmd.SourceID)
		return nil

	default:
		return errors.Newf("unknown action %q", cmd.Action)
	}
}

// formatQueue renders the queue as a numbered list.
func formatQueue(tracks []track.Track) string {
	if len(tracks) == 0 {
		return "The queue is empty."
	}

	var b strings.Builder
	b.WriteString("Current queue:\n")
	for i, t := range tracks {
		fmt.Fprintf(&b, "%d. %s - %s [%s]", i+1, t.Title, t.Artist, t.DurationPrintable())
		if t.AddedBy != "" {
			fmt.Fprintf(&b, " (added by %s)", t.AddedBy)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
