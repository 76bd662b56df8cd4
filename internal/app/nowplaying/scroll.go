package nowplaying

import "strings"

// MessageInfo summarizes one channel message for the scroll heuristic.
type MessageInfo struct {
	Content     string
	Attachments int
	Embeds      int
	Stickers    int
}

// weight estimates how much vertical space a message occupies. Attachments
// and embeds dominate a screen, stickers are nearly as tall, and plain text
// costs one unit per line.
func (m MessageInfo) weight() int {
	if m.Attachments > 0 || m.Embeds > 0 {
		return 8
	}
	if m.Stickers > 0 {
		return 6
	}
	return strings.Count(m.Content, "\n") + 1
}

func totalWeight(msgs []MessageInfo) int {
	total := 0
	for _, m := range msgs {
		total += m.weight()
	}
	return total
}
