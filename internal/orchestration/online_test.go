package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUntilOnline_AllNodesAnswer(t *testing.T) {
	t.Parallel()
	c := NewController(testNodes(3),
		WithObserver(NewRecordingObserver()),
		WithOnlinePollInterval(time.Millisecond),
		WithOnlineProbe(func(context.Context, *Node) error { return nil }),
	)
	c.AddWaitUntilOnlineStep(time.Second)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestWaitUntilOnline_EventualReachability(t *testing.T) {
	t.Parallel()
	var probes atomic.Int32
	c := NewController(testNodes(1),
		WithObserver(NewRecordingObserver()),
		WithOnlinePollInterval(time.Millisecond),
		WithOnlineProbe(func(context.Context, *Node) error {
			if probes.Add(1) < 3 {
				return errors.New("connection refused")
			}
			return nil
		}),
	)
	c.AddWaitUntilOnlineStep(5 * time.Second)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), probes.Load())
}

func TestWaitUntilOnline_UnreachableNodeIsFaultedNotFatal(t *testing.T) {
	t.Parallel()
	obs := NewRecordingObserver()
	c := NewController(testNodes(3),
		WithObserver(obs),
		WithOnlinePollInterval(time.Millisecond),
		WithOnlineProbe(func(_ context.Context, n *Node) error {
			if n.Name == "node-2" {
				return errors.New("no route to host")
			}
			return nil
		}),
	)
	c.AddWaitUntilOnlineStep(20 * time.Millisecond)

	var mu sync.Mutex
	var later []string
	c.AddNodeStep("prepare", func(_ context.Context, n *Node) error {
		mu.Lock()
		later = append(later, n.Name)
		mu.Unlock()
		return nil
	}, nil)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Contains(t, result.Faults, "node-2")
	assert.ElementsMatch(t, []string{"node-1", "node-3"}, later,
		"healthy nodes continue past the offline one")
}
