package rtable

import (
	"net"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/haolipeng/pwospf_router/pkg/types"
)

func ip(s string) uint32 {
	return types.IPToUint32(net.ParseIP(s))
}

func TestLongestPrefixMatch(t *testing.T) {
	tbl := New([]Route{
		{Dest: ip("0.0.0.0"), Mask: 0, Gateway: ip("10.0.1.254"), Iface: "eth0"},
		{Dest: ip("10.0.0.0"), Mask: ip("255.0.0.0"), Gateway: ip("1.1.1.1"), Iface: "eth1"},
		{Dest: ip("10.0.0.0"), Mask: ip("255.255.0.0"), Gateway: ip("2.2.2.2"), Iface: "eth2"},
	})

	testCases := []struct {
		name   string
		dst    string
		wantGW string
	}{
		{"最长前缀优先", "10.0.5.5", "2.2.2.2"},
		{"次长前缀", "10.1.0.1", "1.1.1.1"},
		{"默认路由", "192.168.1.1", "10.0.1.254"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, ok := tbl.Lookup(ip(tc.dst))
			assert.True(t, ok)
			assert.Equal(t, ip(tc.wantGW), r.Gateway)
		})
	}
}

func TestNoRoute(t *testing.T) {
	tbl := New([]Route{{Dest: ip("10.0.2.0"), Mask: ip("255.255.255.0"), Iface: "eth1"}})
	_, ok := tbl.Lookup(ip("10.0.3.1"))
	assert.False(t, ok)

	var empty *Table
	_, ok = empty.Lookup(ip("10.0.3.1"))
	assert.False(t, ok)
}

func TestSamePrefixLaterWins(t *testing.T) {
	tbl := New([]Route{
		{Dest: ip("10.0.2.0"), Mask: ip("255.255.255.0"), Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.2.9"), Mask: ip("255.255.255.0"), Gateway: ip("10.0.2.3"), Iface: "eth1"},
	})
	r, ok := tbl.Lookup(ip("10.0.2.100"))
	assert.True(t, ok)
	assert.Equal(t, ip("10.0.2.3"), r.Gateway)
	assert.Equal(t, ip("10.0.2.100"), Route{Iface: "eth1"}.NextHop(ip("10.0.2.100")))
}

func TestNonContiguousMaskSkipped(t *testing.T) {
	tbl := New([]Route{
		{Dest: ip("10.0.0.0"), Mask: ip("255.0.255.0"), Iface: "eth1"},
		{Dest: ip("10.0.2.0"), Mask: ip("255.255.255.0"), Iface: "eth1"},
	})
	want := []Route{{Dest: ip("10.0.2.0"), Mask: ip("255.255.255.0"), Iface: "eth1"}}
	if diff := cmp.Diff(want, tbl.Routes()); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
}

func TestHolderSwap(t *testing.T) {
	a := New([]Route{{Dest: ip("10.0.0.0"), Mask: ip("255.0.0.0"), Iface: "a"}})
	b := New([]Route{{Dest: ip("10.0.0.0"), Mask: ip("255.0.0.0"), Iface: "b"}})
	h := NewHolder(a)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r, ok := h.Load().Lookup(ip("10.1.1.1"))
			assert.True(t, ok)
			assert.Contains(t, []string{"a", "b"}, r.Iface)
		}
	}()
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			h.Store(b)
		} else {
			h.Store(a)
		}
	}
	wg.Wait()

	assert.Equal(t, 0, NewHolder(nil).Load().Len())
}
