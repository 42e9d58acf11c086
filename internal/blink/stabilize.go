// Package blink stabilizes tracked eye openness and produces autonomous
// blinks.
package blink

// Pair is a left/right eye openness in [0, 1].
type Pair struct {
	L float32
	R float32
}

// Options tune Stabilize. EnableWink lowers the openness difference that
// counts as a deliberate wink. Past a head pitch of MaxRotation both eyes
// copy the visible one.
type Options struct {
	EnableWink  bool    `mapstructure:"enable_wink"`
	MaxRotation float32 `mapstructure:"max_rotation"`
}

// DefaultOptions enables winks with a 0.5 pitch limit.
func DefaultOptions() Options {
	return Options{
		EnableWink:  true,
		MaxRotation: 0.5,
	}
}

const (
	winkThreshold   = 0.8
	noWinkThreshold = 1.2
	closingBelow    = 0.3
	openAbove       = 0.6
)

// Stabilize compensates eye openness for head pitch. Input must already be
// smoothed. When the head turns past MaxRotation the eye facing away from the
// camera is unreliable and both eyes copy the visible one; otherwise the eyes
// are pulled together unless a deliberate wink is detected.
func Stabilize(eyes Pair, headY float32, opts Options) Pair {
	l := clamp(eyes.L, 0, 1)
	r := clamp(eyes.R, 0, 1)

	if headY > opts.MaxRotation {
		return Pair{L: r, R: r}
	}
	if headY < -opts.MaxRotation {
		return Pair{L: l, R: l}
	}

	threshold := float32(noWinkThreshold)
	if opts.EnableWink {
		threshold = winkThreshold
	}
	diff := abs(l - r)
	closing := l < closingBelow && r < closingBelow
	open := l > openAbove && r > openAbove

	if diff >= threshold && !closing && !open {
		return Pair{L: l, R: r}
	}

	var v float32
	if r > l {
		v = lerp(r, l, 0.95)
	} else {
		v = lerp(r, l, 0.05)
	}
	return Pair{L: v, R: v}
}

// lerp moves from start toward end by amount.
func lerp(start, end, amount float32) float32 {
	return start*(1-amount) + end*amount
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
