package meter

import "time"

// Channel tags a reading. The _neg suffix is chosen per impulse from the
// direction input, so a stream may alternate between the positive and
// negative tags when the energy flow direction flips.
type Channel string

const (
	ChannelImpulse    Channel = "Impulse"
	ChannelImpulseNeg Channel = "Impulse_neg"
	ChannelPower      Channel = "Power"
	ChannelPowerNeg   Channel = "Power_neg"
)

// Negative reports whether the channel carries reverse-direction values.
func (c Channel) Negative() bool {
	return c == ChannelImpulseNeg || c == ChannelPowerNeg
}

// Reading is one timestamped measurement. Impulse readings carry the
// value 1; Power readings carry watts.
type Reading struct {
	Channel Channel
	Time    time.Time
	Value   float64
}

func impulseChannel(neg bool) Channel {
	if neg {
		return ChannelImpulseNeg
	}
	return ChannelImpulse
}

func powerChannel(neg bool) Channel {
	if neg {
		return ChannelPowerNeg
	}
	return ChannelPower
}
