package metrics

import (
	"io"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

func snapshot(entries map[string]string) model.OpenSockets {
	m := make(map[model.LocalSocket]string)
	for k, v := range entries {
		s, err := model.ParseLocalSocket(k)
		if err != nil {
			panic(err)
		}
		m[s] = v
	}
	return model.NewOpenSockets(m)
}

func TestObserveSnapshot(t *testing.T) {
	r := NewRecorder()
	r.ObserveSnapshot(snapshot(map[string]string{
		"0.0.0.0:80/tcp":   "nginx",
		"[::]:80/tcp":      "nginx",
		"0.0.0.0:443/udp":  "nginx",
		"127.0.0.1:53/udp": "dnsmasq",
	}), 20*time.Millisecond, time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.openSockets.WithLabelValues("nginx", "TCP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.openSockets.WithLabelValues("nginx", "UDP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.openSockets.WithLabelValues("dnsmasq", "UDP")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastSnapshotTime))

	// a later snapshot without dnsmasq drops its series
	r.ObserveSnapshot(snapshot(map[string]string{"0.0.0.0:80/tcp": "nginx"}), time.Millisecond, time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(r.openSockets))
}

func TestObserveErrorsAndCollisions(t *testing.T) {
	r := NewRecorder()
	r.ObserveError()
	r.ObserveCollision(pipeline.Collision{
		Socket:   model.NewLocalSocket(netip.MustParseAddr("0.0.0.0"), 80, model.ProtocolTCP),
		Previous: "a",
		Winner:   "b",
	})
	r.ObserveCollision(pipeline.Collision{})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.snapshotErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.collisions))
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.ObserveSnapshot(snapshot(map[string]string{"127.0.0.1:8080/tcp": "server"}), time.Millisecond, time.Now())

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `whosock_open_sockets{process="server",protocol="TCP"} 1`)
	assert.Contains(t, string(body), "whosock_snapshot_duration_seconds_count 1")
}
