package pattern

// PercussionChannel is the GM drum channel (10), zero-indexed.
const PercussionChannel uint8 = 9

// Event is one timed percussion onset. Ticks are absolute from session
// start once the controller has offset the bar; immutable after emission.
type Event struct {
	Note      uint8
	Velocity  uint8
	StartTick int
	DurTick   int
	Channel   uint8
}

// NewEvent builds an event on the percussion channel.
func NewEvent(note, velocity uint8, startTick, durTick int) Event {
	return Event{
		Note:      note,
		Velocity:  velocity,
		StartTick: startTick,
		DurTick:   durTick,
		Channel:   PercussionChannel,
	}
}
