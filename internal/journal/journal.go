// Package journal implements the bounded, ordered outbound chunk queue PWS
// uses for retransmission after reconnect.
package journal

import (
	"errors"
	"fmt"
)

// MaxSendBuffer is the journal capacity ceiling (spec §3). Exceeding it
// blocks the sender; the journal itself panics if asked to grow past it,
// since the caller (pws.Send) is responsible for backpressure.
const MaxSendBuffer = 100

// ErrFull is returned by TryAppend when the journal is at capacity.
var ErrFull = errors.New("journal: full")

// entry is one outbound chunk, already header-encoded.
type entry struct {
	index uint64
	chunk []byte
}

// Journal is an ordered, contiguous record of not-yet-acked outbound
// chunks, indices [tailIndex, nextIndex).
type Journal struct {
	entries []entry
	next    uint64 // next index to assign
}

// New returns an empty journal starting index assignment at 0.
func New() *Journal {
	return &Journal{}
}

// Len returns the number of entries currently held.
func (j *Journal) Len() int { return len(j.entries) }

// NextIndex returns the next index that Append will assign.
func (j *Journal) NextIndex() uint64 { return j.next }

// TailIndex returns next_index - len, the oldest index still held.
func (j *Journal) TailIndex() uint64 { return j.next - uint64(len(j.entries)) }

// Full reports whether the journal is at MaxSendBuffer capacity.
func (j *Journal) Full() bool { return len(j.entries) >= MaxSendBuffer }

// Append appends a pre-encoded chunk and returns the index assigned to it.
// It panics if the journal is already full — callers must check Full (or
// call TryAppend) and apply backpressure before calling Append.
func (j *Journal) Append(chunk []byte) uint64 {
	if j.Full() {
		panic(fmt.Sprintf("journal: Append called while full (len=%d)", len(j.entries)))
	}
	idx := j.next
	j.entries = append(j.entries, entry{index: idx, chunk: chunk})
	j.next++
	return idx
}

// TryAppend is the non-panicking form of Append.
func (j *Journal) TryAppend(chunk []byte) (uint64, error) {
	if j.Full() {
		return 0, ErrFull
	}
	return j.Append(chunk), nil
}

// DropThrough removes entries with index < ackIndex. It fails if ackIndex is
// outside [TailIndex(), NextIndex()].
func (j *Journal) DropThrough(ackIndex uint64) error {
	tail := j.TailIndex()
	if ackIndex > j.next {
		return fmt.Errorf("journal: ack index %d exceeds next index %d", ackIndex, j.next)
	}
	if ackIndex < tail {
		return fmt.Errorf("journal: ack index %d precedes tail index %d", ackIndex, tail)
	}
	drop := int(ackIndex - tail)
	j.entries = j.entries[drop:]
	return nil
}

// IterRange calls fn for each chunk whose index lies in [start, end), oldest
// first, stopping early if fn returns false. Indices outside the journal's
// current range are silently skipped (the caller is expected to have
// validated the range against TailIndex/NextIndex already).
func (j *Journal) IterRange(start, end uint64, fn func(index uint64, chunk []byte) bool) {
	tail := j.TailIndex()
	for _, e := range j.entries {
		if e.index < start || e.index >= end {
			continue
		}
		_ = tail
		if !fn(e.index, e.chunk) {
			return
		}
	}
}

// Oldest returns the single oldest chunk in the journal, for the journal
// retransmit timer (spec §4.3: "retransmit the single oldest chunk").
func (j *Journal) Oldest() (index uint64, chunk []byte, ok bool) {
	if len(j.entries) == 0 {
		return 0, nil, false
	}
	e := j.entries[0]
	return e.index, e.chunk, true
}

// Empty reports whether the journal holds no unacked entries.
func (j *Journal) Empty() bool { return len(j.entries) == 0 }
