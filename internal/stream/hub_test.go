package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcast(t *testing.T) {
	g := NewWithT(t)
	hub := NewHub(logr.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	g.Eventually(hub.Clients, time.Second, 10*time.Millisecond).Should(Equal(2))

	s := md.NewState()
	s.Atoms = make([]md.Atom, 3)
	hub.Broadcast(NewFrame(thermo.Sample{Turn: 10, Temperature: 1.5, Kinetic: 2, Potential: -5}, s, false))

	for _, conn := range []*websocket.Conn{a, b} {
		var f Frame
		g.Expect(conn.SetReadDeadline(time.Now().Add(time.Second))).To(Succeed())
		g.Expect(conn.ReadJSON(&f)).To(Succeed())
		g.Expect(f.Turn).To(Equal(int64(10)))
		g.Expect(f.Total).To(Equal(-3.0))
		g.Expect(f.Atoms).To(Equal(3))
		g.Expect(f.Positions).To(BeNil())
	}
}

func TestLateClientGetsLastFrame(t *testing.T) {
	g := NewWithT(t)
	hub := NewHub(logr.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	s := md.NewState()
	s.Atoms = []md.Atom{{Pos: md.Vec3{1, 2, 3}}}
	hub.Broadcast(NewFrame(thermo.Sample{Turn: 4}, s, true))

	conn := dial(t, srv)
	var f Frame
	g.Expect(conn.SetReadDeadline(time.Now().Add(time.Second))).To(Succeed())
	g.Expect(conn.ReadJSON(&f)).To(Succeed())
	g.Expect(f.Turn).To(Equal(int64(4)))
	g.Expect(f.Positions).To(Equal([][3]float64{{1, 2, 3}}))
}

func TestClosedClientIsRemoved(t *testing.T) {
	g := NewWithT(t)
	hub := NewHub(logr.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	g.Eventually(hub.Clients, time.Second, 10*time.Millisecond).Should(Equal(1))
	conn.Close()
	g.Eventually(hub.Clients, time.Second, 10*time.Millisecond).Should(BeZero())
}
