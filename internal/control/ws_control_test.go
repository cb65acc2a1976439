package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/frudas24/hidbridge/internal/activity"
	"github.com/frudas24/hidbridge/internal/prefs"
	"github.com/frudas24/hidbridge/internal/session"
	"github.com/frudas24/hidbridge/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/kataras/golog"
)

// replies records what a channel sends back to its page.
type replies struct {
	mu   sync.Mutex
	msgs []string
}

func (r *replies) send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(data))
	return nil
}

func (r *replies) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

type fixture struct {
	srv   *Server
	sess  *session.Session
	sink  *testutil.FakeSink
	exec  *testutil.FakeExecutor
	log   *activity.Log
	saved []prefs.Prefs
}

func newFixture() *fixture {
	f := &fixture{
		sess: session.New("pw", true),
		sink: &testutil.FakeSink{},
		exec: &testutil.FakeExecutor{Done: make(chan string, 4)},
		log:  activity.New(0),
	}
	f.srv = NewServer(Options{
		Session:  f.sess,
		Sink:     f.sink,
		Executor: f.exec,
		Activity: f.log,
		Logger:   golog.New().SetLevel("disable"),
		SavePrefs: func(p prefs.Prefs) error {
			f.saved = append(f.saved, p)
			return nil
		},
	})
	return f
}

func handleAll(t *testing.T, ch *Channel, msgs ...string) {
	t.Helper()
	for _, m := range msgs {
		if err := ch.Handle([]byte(m)); err != nil {
			t.Fatalf("handle %s: %v", m, err)
		}
	}
}

func waitExec(t *testing.T, f *fixture) string {
	t.Helper()
	select {
	case name := <-f.exec.Done:
		return name
	case <-time.After(2 * time.Second):
		t.Fatalf("expected executor call")
		return ""
	}
}

// TestChannel_PointerFlow verifies a tap and a drag reach the sink.
func TestChannel_PointerFlow(t *testing.T) {
	f := newFixture()
	ch := f.srv.Open("test", (&replies{}).send)
	handleAll(t, ch,
		`{"t":"down","x":10,"y":10}`,
		`{"t":"up"}`,
	)
	if got := f.sink.Commands(); len(got) != 1 || got[0] != "MOUSE_LEFT" {
		t.Fatalf("expected MOUSE_LEFT, got %v", got)
	}
	f.sink.Reset()

	handleAll(t, ch,
		`{"t":"down","x":10,"y":10}`,
		`{"t":"move","x":14,"y":13}`,
		`{"t":"move","x":40,"y":40,"touches":2}`,
		`{"t":"leave"}`,
	)
	got := strings.Join(f.sink.Commands(), " ")
	if got != "MOUSE_PRESS MOUSE_MOVE:4,3 MOUSE_RELEASE" {
		t.Fatalf("unexpected commands %q", got)
	}
}

// TestChannel_PageTimestamps verifies the page clock on down and up decides the click.
func TestChannel_PageTimestamps(t *testing.T) {
	f := newFixture()
	ch := f.srv.Open("test", (&replies{}).send)
	handleAll(t, ch,
		`{"t":"down","x":10,"y":10,"ts":1000}`,
		`{"t":"up","ts":1500}`,
	)
	if got := f.sink.Commands(); len(got) != 0 {
		t.Fatalf("expected a long press by page time to skip the click, got %v", got)
	}
}

// TestChannel_SkipsMalformed verifies bad payloads are ignored.
func TestChannel_SkipsMalformed(t *testing.T) {
	f := newFixture()
	ch := f.srv.Open("test", (&replies{}).send)
	handleAll(t, ch, `not json`, `{"t":"warp"}`, `{}`)
	if got := f.sink.Commands(); len(got) != 0 {
		t.Fatalf("expected no commands, got %v", got)
	}
}

// TestChannel_KeyboardReplies verifies capture, keys and the state reply.
func TestChannel_KeyboardReplies(t *testing.T) {
	f := newFixture()
	r := &replies{}
	ch := f.srv.Open("test", r.send)
	handleAll(t, ch, `{"t":"keydown","code":"KeyG","key":"g"}`)
	if !strings.Contains(r.last(), `"intercept":false`) {
		t.Fatalf("expected key passed through with capture off, got %s", r.last())
	}
	handleAll(t, ch,
		`{"t":"capture","enabled":true}`,
		`{"t":"keydown","code":"KeyH","key":"h"}`,
	)
	if !strings.Contains(r.last(), `"pressed":["h"]`) || !strings.Contains(r.last(), `"t":"state"`) {
		t.Fatalf("expected pressed key in state reply, got %s", r.last())
	}
	if !strings.Contains(r.last(), `"intercept":true`) {
		t.Fatalf("expected captured key intercepted, got %s", r.last())
	}
	handleAll(t, ch, `{"t":"sensitivity","value":1}`)
	if strings.Contains(r.last(), `"intercept"`) {
		t.Fatalf("expected no intercept outside key replies, got %s", r.last())
	}
	handleAll(t, ch, `{"t":"keydown","code":"Escape"}`)
	got := strings.Join(f.sink.Commands(), " ")
	if got != "KEY_PRESS:h KEY_RELEASE_ALL" {
		t.Fatalf("unexpected commands %q", got)
	}

	handleAll(t, ch, `{"t":"modifier","key":"hyper"}`)
	if !strings.Contains(r.last(), `"ok":false`) {
		t.Fatalf("expected error result, got %s", r.last())
	}
}

// TestChannel_Sensitivity verifies validation, session update and persistence.
func TestChannel_Sensitivity(t *testing.T) {
	f := newFixture()
	r := &replies{}
	ch := f.srv.Open("test", r.send)
	handleAll(t, ch, `{"t":"sensitivity","value":-1}`)
	if !strings.Contains(r.last(), `"op":"sensitivity"`) || len(f.saved) != 0 {
		t.Fatalf("expected rejection without save, got %s", r.last())
	}
	handleAll(t, ch, `{"t":"sensitivity","value":2}`)
	if f.sess.Sensitivity() != 2 || len(f.saved) != 1 || f.saved[0].Sensitivity != 2 {
		t.Fatalf("expected sensitivity 2 saved, got %v %+v", f.sess.Sensitivity(), f.saved)
	}

	other := f.srv.Open("test", (&replies{}).send)
	if got := other.Bridge().Snapshot().Sensitivity; got != 2 {
		t.Fatalf("expected new page to start at 2, got %v", got)
	}
}

// TestChannel_InputKillSwitch verifies disabling input releases every page.
func TestChannel_InputKillSwitch(t *testing.T) {
	f := newFixture()
	a := f.srv.Open("a", (&replies{}).send)
	b := f.srv.Open("b", (&replies{}).send)
	handleAll(t, a, `{"t":"down"}`, `{"t":"up"}`, `{"t":"down"}`)
	handleAll(t, b, `{"t":"capture","enabled":true}`)
	f.sink.Reset()

	handleAll(t, b, `{"t":"inputEnabled","enabled":false}`)
	got := f.sink.Commands()
	if len(got) != 2 {
		t.Fatalf("expected release from both pages, got %v", got)
	}
	f.sink.Reset()
	handleAll(t, a, `{"t":"type","text":"x"}`, `{"t":"command","cmd":"MOUSE_LEFT"}`)
	if got := f.sink.Commands(); len(got) != 0 {
		t.Fatalf("expected nothing while disabled, got %v", got)
	}
}

// TestChannel_Jiggler verifies the executor call, activity entry and persistence.
func TestChannel_Jiggler(t *testing.T) {
	f := newFixture()
	r := &replies{}
	ch := f.srv.Open("test", r.send)
	handleAll(t, ch, `{"t":"jiggler","enabled":true,"mode":"circles","diameter":5,"delayMs":3000}`)
	if name := waitExec(t, f); name != "SetJiggler" {
		t.Fatalf("expected SetJiggler, got %s", name)
	}
	if err := f.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	entries := f.log.Entries()
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Message, "Mouse jiggler enabled (type: circles") {
		t.Fatalf("unexpected activity %+v", entries)
	}
	if j := f.srv.Jiggler(); !j.Enabled || j.Diameter != 5 {
		t.Fatalf("expected jiggler stored, got %+v", j)
	}
	if len(f.saved) != 1 {
		t.Fatalf("expected prefs saved once, got %d", len(f.saved))
	}
}

// TestChannel_JigglerInvalid verifies validation happens before the executor.
func TestChannel_JigglerInvalid(t *testing.T) {
	f := newFixture()
	r := &replies{}
	ch := f.srv.Open("test", r.send)
	handleAll(t, ch, `{"t":"jiggler","enabled":true,"diameter":900}`)
	if !strings.Contains(r.last(), `"ok":false`) {
		t.Fatalf("expected rejection, got %s", r.last())
	}
	if calls := f.exec.Recorded(); len(calls) != 0 {
		t.Fatalf("expected no executor call, got %+v", calls)
	}
}

// TestChannel_ScriptFailure verifies a failed script is logged as an error.
func TestChannel_ScriptFailure(t *testing.T) {
	f := newFixture()
	f.exec.Err = errors.New("device offline")
	ch := f.srv.Open("test", (&replies{}).send)
	handleAll(t, ch, `{"t":"script","text":"STRING hi"}`)
	waitExec(t, f)
	if err := f.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	entries := f.log.Entries()
	if len(entries) != 1 || !entries[0].Error {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
}

// TestServer_ShutdownReleases verifies shutdown closes pages and refuses new ones.
func TestServer_ShutdownReleases(t *testing.T) {
	f := newFixture()
	ch := f.srv.Open("test", (&replies{}).send)
	handleAll(t, ch, `{"t":"down"}`, `{"t":"up"}`, `{"t":"down"}`)
	f.sink.Reset()

	if err := f.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if got := f.sink.Commands(); len(got) != 1 || got[0] != "MOUSE_RELEASE" {
		t.Fatalf("expected MOUSE_RELEASE, got %v", got)
	}
	if len(f.srv.Bridges()) != 0 {
		t.Fatalf("expected no open pages")
	}
	if f.srv.Open("late", nil) != nil {
		t.Fatalf("expected nil channel after shutdown")
	}
}

// TestServeHTTP_Unauthorized verifies the websocket requires a login.
func TestServeHTTP_Unauthorized(t *testing.T) {
	f := newFixture()
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/control", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

// TestServeHTTP_SecondClientNeedsOwnLogin verifies one operator's login does not admit another client.
func TestServeHTTP_SecondClientNeedsOwnLogin(t *testing.T) {
	f := newFixture()
	token, ok := f.sess.Login("pw")
	if !ok {
		t.Fatalf("expected login to succeed")
	}
	ts := httptest.NewServer(f.srv)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	header := http.Header{}
	header.Set("Cookie", session.CookieName+"="+token)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial with cookie failed: %v", err)
	}
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial without cookie to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for second client, got %+v", resp)
	}
	if _, ok := f.sess.Login("wrong"); ok || !f.sess.Valid(token) {
		t.Fatalf("expected failed login to keep the operator logged in")
	}
}

// TestServeHTTP_SocketCloseReleases verifies a dropped socket releases a held button.
func TestServeHTTP_SocketCloseReleases(t *testing.T) {
	f := newFixture()
	token, _ := f.sess.Login("pw")
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	header := http.Header{}
	header.Set("Cookie", session.CookieName+"="+token)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	for _, m := range []string{`{"t":"down"}`, `{"t":"up"}`, `{"t":"down"}`, `{"t":"hello"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	_, data, err := conn.ReadMessage()
	if err != nil || !strings.Contains(string(data), `"gesture":"held"`) {
		t.Fatalf("expected held state reply, got %s err=%v", data, err)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.sink.Commands(); len(got) == 3 {
			if got[2] != "MOUSE_RELEASE" {
				t.Fatalf("expected MOUSE_RELEASE last, got %v", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected release after socket close, got %v", f.sink.Commands())
}
