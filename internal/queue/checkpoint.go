package queue

import (
	"encoding/json"
	"sync"
)

// CheckpointMap stores serialized engine states keyed by frame index.
// The live service writes one at session start and after every counted
// rep, so Latest is always the most recent committed counter state and
// never a mid-rep transient.
type CheckpointMap struct {
	mu        sync.RWMutex
	states    map[uint]json.RawMessage
	lastFrame uint
	has       bool
}

// NewCheckpointMap creates an empty checkpoint map.
func NewCheckpointMap() *CheckpointMap {
	return &CheckpointMap{
		states: make(map[uint]json.RawMessage),
	}
}

// Set stores the state checkpoint for the given frame index.
func (m *CheckpointMap) Set(frame uint, state json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[frame] = state
	if !m.has || frame >= m.lastFrame {
		m.lastFrame = frame
		m.has = true
	}
}

// Len returns the number of stored checkpoints.
func (m *CheckpointMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// Latest returns the highest-frame checkpoint, or ok=false when none
// has been written yet.
func (m *CheckpointMap) Latest() (frame uint, state json.RawMessage, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.has {
		return 0, nil, false
	}
	return m.lastFrame, m.states[m.lastFrame], true
}
