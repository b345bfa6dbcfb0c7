package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/whosock/pkg/model"
)

type fakeSource struct {
	conns []model.RawConnection
	err   error
	calls int
}

func (f *fakeSource) Connections(context.Context) ([]model.RawConnection, error) {
	f.calls++
	return f.conns, f.err
}

func conn(local string, proto model.Protocol, name string) model.RawConnection {
	return model.RawConnection{
		Local:       netip.MustParseAddrPort(local),
		Proto:       proto,
		ProcessName: name,
	}
}

func sock(local string, proto model.Protocol) model.LocalSocket {
	ap := netip.MustParseAddrPort(local)
	return model.NewLocalSocket(ap.Addr(), ap.Port(), proto)
}

func TestOpenSocketsExample(t *testing.T) {
	src := &fakeSource{conns: []model.RawConnection{
		conn("127.0.0.1:8080", model.ProtocolTCP, "server"),
		conn("127.0.0.1:53", model.ProtocolUDP, "dnsmasq"),
	}}

	snap, err := OpenSockets(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2, snap.Len())

	name, ok := snap.Lookup(sock("127.0.0.1:8080", model.ProtocolTCP))
	assert.True(t, ok)
	assert.Equal(t, "server", name)

	name, ok = snap.Lookup(sock("127.0.0.1:53", model.ProtocolUDP))
	assert.True(t, ok)
	assert.Equal(t, "dnsmasq", name)
}

func TestFoldCompleteness(t *testing.T) {
	var conns []model.RawConnection
	for i := range 50 {
		proto := model.ProtocolTCP
		if i%2 == 1 {
			proto = model.ProtocolUDP
		}
		conns = append(conns, conn(fmt.Sprintf("10.0.%d.1:%d", i, 1000+i), proto, fmt.Sprintf("proc-%d", i)))
	}
	conns = append(conns, conn("[fe80::1]:1000", model.ProtocolTCP, "v6"))

	snap := Fold(conns)
	require.Equal(t, len(conns), snap.Len())
	for _, c := range conns {
		name, ok := snap.Lookup(model.NewLocalSocket(c.LocalIP(), c.LocalPort(), c.Protocol()))
		assert.True(t, ok, c.Local.String())
		assert.Equal(t, c.ProcessName, name)
	}
}

func TestFoldLastWriteWins(t *testing.T) {
	tests := map[string]struct {
		conns []model.RawConnection
		want  string
	}{
		"b last": {
			conns: []model.RawConnection{
				conn("0.0.0.0:80", model.ProtocolTCP, "a"),
				conn("0.0.0.0:80", model.ProtocolTCP, "b"),
			},
			want: "b",
		},
		"a last": {
			conns: []model.RawConnection{
				conn("0.0.0.0:80", model.ProtocolTCP, "b"),
				conn("0.0.0.0:80", model.ProtocolTCP, "a"),
			},
			want: "a",
		},
		"mapped spelling collides": {
			conns: []model.RawConnection{
				conn("10.0.0.1:80", model.ProtocolTCP, "v4"),
				conn("[::ffff:10.0.0.1]:80", model.ProtocolTCP, "mapped"),
			},
			want: "mapped",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var collisions []Collision
			snap := FoldWithCollisions(tc.conns, func(c Collision) {
				collisions = append(collisions, c)
			})
			require.Equal(t, 1, snap.Len())
			for _, got := range snap.All() {
				assert.Equal(t, tc.want, got)
			}
			require.Len(t, collisions, 1)
			assert.Equal(t, tc.want, collisions[0].Winner)
			assert.Equal(t, tc.conns[0].ProcessName, collisions[0].Previous)
		})
	}
}

func TestFoldProtocolIndependence(t *testing.T) {
	snap := Fold([]model.RawConnection{
		conn("10.0.0.1:443", model.ProtocolTCP, "nginx"),
		conn("10.0.0.1:443", model.ProtocolUDP, "coturn"),
	})
	require.Equal(t, 2, snap.Len())

	name, _ := snap.Lookup(sock("10.0.0.1:443", model.ProtocolTCP))
	assert.Equal(t, "nginx", name)
	name, _ = snap.Lookup(sock("10.0.0.1:443", model.ProtocolUDP))
	assert.Equal(t, "coturn", name)
}

func TestFoldNoFiltering(t *testing.T) {
	snap := Fold([]model.RawConnection{
		conn("0.0.0.0:0", model.ProtocolUDP, ""),
		conn("[::]:68", model.ProtocolUDP, "<unknown>"),
	})
	assert.Equal(t, 2, snap.Len())
	name, ok := snap.Lookup(sock("0.0.0.0:0", model.ProtocolUDP))
	assert.True(t, ok)
	assert.Empty(t, name)
}

func TestFoldEmpty(t *testing.T) {
	assert.Zero(t, Fold(nil).Len())

	snap, err := OpenSockets(context.Background(), &fakeSource{conns: []model.RawConnection{}})
	require.NoError(t, err)
	assert.Zero(t, snap.Len())
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	conns := []model.RawConnection{
		conn("127.0.0.1:8080", model.ProtocolTCP, "server"),
		conn("127.0.0.1:8080", model.ProtocolTCP, "server2"),
	}
	orig := append([]model.RawConnection(nil), conns...)

	snap := Fold(conns)
	assert.Equal(t, orig, conns)

	conns[1].ProcessName = "mutated"
	conns[1].Local = netip.MustParseAddrPort("127.0.0.1:9090")
	name, ok := snap.Lookup(sock("127.0.0.1:8080", model.ProtocolTCP))
	assert.True(t, ok)
	assert.Equal(t, "server2", name)
	_, ok = snap.Lookup(sock("127.0.0.1:9090", model.ProtocolTCP))
	assert.False(t, ok)
}

func TestOpenSocketsSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{
		conns: []model.RawConnection{conn("127.0.0.1:80", model.ProtocolTCP, "x")},
		err:   boom,
	}
	snap, err := OpenSockets(context.Background(), src)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, snap.Len())
}

func TestOpenSocketsCollisionHandler(t *testing.T) {
	src := &fakeSource{conns: []model.RawConnection{
		conn("0.0.0.0:80", model.ProtocolTCP, "a"),
		conn("0.0.0.0:80", model.ProtocolTCP, "b"),
		conn("0.0.0.0:80", model.ProtocolTCP, "c"),
	}}
	var got []Collision
	snap, err := OpenSockets(context.Background(), src, WithCollisionHandler(func(c Collision) {
		got = append(got, c)
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, []Collision{
		{Socket: sock("0.0.0.0:80", model.ProtocolTCP), Previous: "a", Winner: "b"},
		{Socket: sock("0.0.0.0:80", model.ProtocolTCP), Previous: "b", Winner: "c"},
	}, got)
}
