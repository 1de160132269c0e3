package registers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasApply(t *testing.T) {
	const current = 0xf0f0
	assert.Equal(t, uint32(0x1234), RW.Apply(current, 0x1234))
	assert.Equal(t, uint32(0xf00f), XOR.Apply(current, 0x00ff))
	assert.Equal(t, uint32(0xf0ff), SET.Apply(current, 0x000f))
	assert.Equal(t, uint32(0x00f0), CLR.Apply(current, 0xf000))
}

func TestDecode(t *testing.T) {
	reg, alias := Decode(0x50202004)
	assert.Equal(t, uint32(0x50200004), reg)
	assert.Equal(t, SET, alias)

	assert.Equal(t, uint32(0x50203004), ClearAlias(0x50201004))
	assert.Equal(t, uint32(0x50201004), XorAlias(0x50200004))
	assert.Equal(t, uint32(0x0d4), Offset(0x50200000, 0x502030d4))
	assert.Equal(t, "CLR", CLR.String())
}

func TestPollSatisfied(t *testing.T) {
	var n atomic.Uint32
	read := func() (uint32, error) { return n.Add(1), nil }
	v, err := Poll(read, nil, 0x10, 0x10, 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10), v)
}

func TestPollWallClockTimeout(t *testing.T) {
	read := func() (uint32, error) { return 0, nil }
	start := time.Now()
	_, err := Poll(read, nil, 1, 1, 0, 50*time.Millisecond)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestPollCycleTimeout(t *testing.T) {
	var cycles atomic.Uint64
	read := func() (uint32, error) {
		cycles.Add(1)
		return 0, nil
	}
	_, err := Poll(read, cycles.Load, 1, 1, 10, 0)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, cycles.Load(), uint64(10))
}

func TestPollArguments(t *testing.T) {
	_, err := Poll(nil, nil, 0, 0, 0, 0)
	assert.Error(t, err)
	_, err = Poll(func() (uint32, error) { return 0, nil }, nil, 1, 1, 5, 0)
	assert.Error(t, err)
}
