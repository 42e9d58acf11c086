package rig

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_TakeOnce(t *testing.T) {
	f := NewFeed()
	assert.Nil(t, f.Take())

	f.Push(State{Eye: Eyes{L: 0.2}})
	f.Push(State{Eye: Eyes{L: 0.8}})

	s := f.Take()
	require.NotNil(t, s)
	assert.Equal(t, float32(0.8), s.Eye.L)
	assert.Nil(t, f.Take())

	received, dropped := f.Stats()
	assert.Equal(t, uint64(2), received)
	assert.Equal(t, uint64(1), dropped)
	assert.False(t, f.LastReceived().IsZero())
}

func TestReadCapture(t *testing.T) {
	input := `{"t":0,"state":{"head":{"degrees":{"x":1,"y":2,"z":3},"y":0.1},"eye":{"l":0.9,"r":0.8},"mouth":{"x":0.2,"y":0.5}}}

{"t":0.033,"state":null}
`
	samples, err := ReadCapture(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, float32(2), samples[0].State.Head.Degrees.Y)
	assert.Equal(t, float32(0.5), samples[0].State.Mouth.Y)
	assert.Nil(t, samples[1].State)
	assert.Equal(t, 33*time.Millisecond, samples[1].At.Round(time.Millisecond))
}

func TestReadCapture_Errors(t *testing.T) {
	_, err := ReadCapture(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestCaptureRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	st := &State{Pupil: Vec2{X: 0.3}}
	require.NoError(t, WriteSample(&buf, Sample{At: time.Second, State: st}))
	require.NoError(t, WriteSample(&buf, Sample{At: 2 * time.Second}))

	samples, err := ReadCapture(&buf)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, float32(0.3), samples[0].State.Pupil.X)
	assert.Nil(t, samples[1].State)
}

func TestValidate(t *testing.T) {
	s := State{}
	assert.NoError(t, s.Validate())
	s.Eye.R = float32(math.Inf(1))
	assert.ErrorContains(t, s.Validate(), "eye.r")
}
