package rig

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Sample is one line of a capture file. A line with "state": null records a
// frame where the solver produced nothing.
type Sample struct {
	At    time.Duration `json:"t"`
	State *State        `json:"state"`
}

// ReadCapture decodes a JSON-lines capture. Blank lines are skipped.
func ReadCapture(r io.Reader) ([]Sample, error) {
	var samples []Sample
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var wire struct {
			At    float64 `json:"t"`
			State *State  `json:"state"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("capture line %d: %w", line, err)
		}
		if wire.State != nil {
			if err := wire.State.Validate(); err != nil {
				return nil, fmt.Errorf("capture line %d: %w", line, err)
			}
		}
		samples = append(samples, Sample{
			At:    time.Duration(wire.At * float64(time.Second)),
			State: wire.State,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return samples, nil
}

func WriteSample(w io.Writer, s Sample) error {
	wire := struct {
		At    float64 `json:"t"`
		State *State  `json:"state"`
	}{At: s.At.Seconds(), State: s.State}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
