package output

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/whosock/pkg/model"
)

func mustSocket(t *testing.T, s string) model.LocalSocket {
	t.Helper()
	ls, err := model.ParseLocalSocket(s)
	require.NoError(t, err)
	return ls
}

func exampleSnapshot(t *testing.T) model.OpenSockets {
	return model.NewOpenSockets(map[model.LocalSocket]string{
		mustSocket(t, "127.0.0.1:8080/tcp"): "server",
		mustSocket(t, "127.0.0.1:53/udp"):   "dnsmasq",
	})
}

func TestRenderTable(t *testing.T) {
	tests := map[string]struct {
		filter Filter
		want   string
	}{
		"no filter": {
			want: "PROTO  LOCAL ADDRESS   PROCESS\n" +
				"UDP    127.0.0.1:53    dnsmasq\n" +
				"TCP    127.0.0.1:8080  server\n" +
				"2 sockets\n",
		},
		"by port": {
			filter: Filter{Port: 53},
			want: "PROTO  LOCAL ADDRESS  PROCESS\n" +
				"UDP    127.0.0.1:53   dnsmasq\n" +
				"1 socket (of 2)\n",
		},
		"nothing matches": {
			filter: Filter{Process: "sshd"},
			want: "PROTO  LOCAL ADDRESS  PROCESS\n" +
				"0 sockets (of 2)\n",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderTable(&buf, exampleSnapshot(t), tc.filter, false))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestRenderTableTruncatesLongNames(t *testing.T) {
	long := "a-process-name-well-beyond-the-column-width-limit"
	snap := model.NewOpenSockets(map[model.LocalSocket]string{
		mustSocket(t, "0.0.0.0:80/tcp"): long,
	})
	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, snap, Filter{}, false))
	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), "…")
}

func TestFilterMatch(t *testing.T) {
	s := mustSocket(t, "10.0.0.1:443/tcp")
	tests := map[string]struct {
		filter Filter
		match  bool
	}{
		"zero":             {filter: Filter{}, match: true},
		"process":          {filter: Filter{Process: "NGINX"}, match: true},
		"other process":    {filter: Filter{Process: "coturn"}, match: false},
		"protocol":         {filter: Filter{Protocol: model.ProtocolTCP}, match: true},
		"other protocol":   {filter: Filter{Protocol: model.ProtocolUDP}, match: false},
		"port":             {filter: Filter{Port: 443}, match: true},
		"other port":       {filter: Filter{Port: 80}, match: false},
		"all fields match": {filter: Filter{Process: "nginx", Protocol: model.ProtocolTCP, Port: 443}, match: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.match, tc.filter.Match(s, "nginx"))
		})
	}
}

func TestFilterApply(t *testing.T) {
	snap := exampleSnapshot(t)
	assert.Equal(t, snap, Filter{}.Apply(snap))

	udp := Filter{Protocol: model.ProtocolUDP}.Apply(snap)
	assert.Equal(t, 1, udp.Len())
	name, ok := udp.Lookup(mustSocket(t, "127.0.0.1:53/udp"))
	assert.True(t, ok)
	assert.Equal(t, "dnsmasq", name)
	assert.Equal(t, 2, snap.Len())
}

func TestRenderConnections(t *testing.T) {
	conns := []model.RawConnection{
		{
			Local:       netip.MustParseAddrPort("127.0.0.1:8080"),
			Proto:       model.ProtocolTCP,
			State:       "LISTEN",
			PID:         42,
			ProcessName: "server",
		},
		{
			Local:       netip.MustParseAddrPort("[::ffff:127.0.0.1]:8080"),
			Remote:      netip.MustParseAddrPort("127.0.0.1:51000"),
			Proto:       model.ProtocolTCP,
			State:       "ESTABLISHED",
			PID:         42,
			ProcessName: "server",
		},
		{
			Local:       netip.MustParseAddrPort("0.0.0.0:68"),
			Proto:       model.ProtocolUDP,
			ProcessName: "<unknown>",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderConnections(&buf, conns, Filter{Protocol: model.ProtocolTCP}, false))
	want := "PROTO  LOCAL ADDRESS   REMOTE ADDRESS   STATE        PID  PROCESS\n" +
		"TCP    127.0.0.1:8080  -                LISTEN       42   server\n" +
		"TCP    127.0.0.1:8080  127.0.0.1:51000  ESTABLISHED  42   server\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderShort(t *testing.T) {
	results := Resolve(exampleSnapshot(t), []model.LocalSocket{
		mustSocket(t, "127.0.0.1:8080/tcp"),
		mustSocket(t, "127.0.0.1:8080/udp"),
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].Found)
	assert.False(t, results[1].Found)

	var buf bytes.Buffer
	require.NoError(t, RenderShort(&buf, results, false))
	assert.Equal(t, "127.0.0.1:8080/TCP → server\n127.0.0.1:8080/UDP → not found\n", buf.String())
}

func TestWriteSnapshotJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshotJSON(&buf, exampleSnapshot(t), Filter{}))

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "dnsmasq", entries[0]["process"])
	assert.Equal(t, "UDP", entries[0]["protocol"])
	assert.Equal(t, "server", entries[1]["process"])
	assert.EqualValues(t, 8080, entries[1]["port"])

	buf.Reset()
	require.NoError(t, WriteSnapshotJSON(&buf, exampleSnapshot(t), Filter{Process: "nobody"}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteConnectionsJSON(t *testing.T) {
	conns := []model.RawConnection{
		{
			Local:       netip.MustParseAddrPort("127.0.0.1:8080"),
			Remote:      netip.MustParseAddrPort("127.0.0.1:40000"),
			Proto:       model.ProtocolTCP,
			State:       "ESTABLISHED",
			PID:         42,
			ProcessName: "server",
		},
		{
			Local:       netip.MustParseAddrPort("0.0.0.0:68"),
			Proto:       model.ProtocolUDP,
			ProcessName: "<unknown>",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConnectionsJSON(&buf, conns, Filter{}))
	assert.Contains(t, buf.String(), `"<unknown>"`)
	var got []model.RawConnection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, conns, got)

	buf.Reset()
	require.NoError(t, WriteConnectionsJSON(&buf, conns, Filter{Protocol: model.ProtocolUDP}))
	got = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, uint16(68), got[0].LocalPort())

	buf.Reset()
	require.NoError(t, WriteConnectionsJSON(&buf, nil, Filter{}))
	assert.Equal(t, "[]\n", buf.String())
}
