package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/haolipeng/pwospf_router/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func (r *Router) countdown() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lsuCountdown
}

func TestRunTimers(t *testing.T) {
	r, tx, clock := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true, LSUInterval: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	clock.BlockUntil(2)
	// 第一次 Hello 立即发送，LSU 要等满一个间隔
	require.Eventually(t, func() bool { return tx.count() == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return r.countdown() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, tx.count())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return tx.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), r.Metrics().LSUsSent)

	for _, want := range []int64{1, 2, 1} {
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return r.countdown() == want }, time.Second, 5*time.Millisecond)
	}
	// 到第 5 秒：第二次 LSU 与第二次 Hello
	require.Eventually(t, func() bool { return tx.count() == 8 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(4), r.Metrics().HellosSent)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunStaticMode(t *testing.T) {
	r, tx, _ := staticRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, tx.count())
}

func TestStageProcess(t *testing.T) {
	r, tx, _ := staticRouter(t)
	stage := NewStage(r)
	assert.Equal(t, types.StageRouting, stage.Stage())
	assert.Equal(t, "router", stage.Name())
	require.NoError(t, stage.CheckReady())

	in := make(chan *types.Frame, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	out, err := stage.Process(context.Background(), in, &wg)
	require.NoError(t, err)

	in <- &types.Frame{ID: "1", Iface: "eth1", RawData: arpRequestFrame(t, macR2, "10.0.2.2", "10.0.2.1")}
	in <- &types.Frame{ID: "2", Iface: "eth0", RawData: udp(t, "10.0.3.9", 64, 1), Verdict: types.VerdictDeny}
	in <- &types.Frame{ID: "3", Iface: "eth0", RawData: udp(t, "10.0.3.9", 1, 2)}
	close(in)

	var got []*types.Frame
	for f := range out {
		got = append(got, f)
	}
	wg.Wait()

	require.Len(t, got, 3)
	assert.Equal(t, types.ActionReplied, got[0].Action)
	assert.Equal(t, types.ActionDropped, got[1].Action)
	assert.Equal(t, types.DropFiltered, got[1].Reason)
	assert.Equal(t, types.DropTTLExpired, got[2].Reason)

	// 被过滤的帧不会进入路由器
	assert.Equal(t, 1, tx.count())
	assert.Equal(t, uint64(1), r.Metrics().Dropped(string(types.DropFiltered)))

	stats := stage.Metrics().GetStats()
	assert.EqualValues(t, 3, stats["processed_packets"])
	assert.EqualValues(t, 2, stats["dropped_packets"])
}

func TestStageStopsOnCancel(t *testing.T) {
	r, _, _ := staticRouter(t)
	stage := NewStage(r)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan *types.Frame)
	var wg sync.WaitGroup
	wg.Add(1)
	out, err := stage.Process(ctx, in, &wg)
	require.NoError(t, err)

	cancel()
	wg.Wait()
	_, ok := <-out
	assert.False(t, ok)
}
