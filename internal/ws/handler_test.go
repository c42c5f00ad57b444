package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/model"
)

var testAreas = []model.Area{
	{Name: "viinikka-1", Service: model.ServiceViinikka, Entities: []string{"KV-0125-C01", "KV-0125-C02"}},
	{Name: "tampere-1", Service: model.ServiceTampere, Entities: []string{"KV-0217-C01"}},
}

// fakeAnalyzer publishes one report per entity through the bridge, like the
// engine does through its sinks.
type fakeAnalyzer struct {
	bridge *Bridge
	err    error

	mu    sync.Mutex
	calls []string
}

func (f *fakeAnalyzer) AnalyzeArea(ctx context.Context, area model.Area, date time.Time) (*engine.AreaReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, area.Name+"@"+date.Format("2006-01-02"))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := &engine.AreaReport{Area: area.Name, Date: date.Format("2006-01-02"), Energy: 100, EnergyText: "100 Wh"}
	for _, e := range area.Entities {
		r := engine.DayReport{Entity: e, Area: area.Name, Date: out.Date}
		out.Reports = append(out.Reports, r)
		if err := f.bridge.Publish(ctx, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func testHandler(err error) (*Handler, *fakeAnalyzer) {
	hub := NewHub()
	analyzer := &fakeAnalyzer{bridge: NewBridge(hub), err: err}
	return NewHandler(hub, analyzer, testAreas), analyzer
}

// dialHandler sets up a test server with the handler and returns a WS connection.
func dialHandler(t *testing.T, handler *Handler) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

// readJSON reads the next JSON message from the connection.
func readJSON(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

// sendJSON sends a JSON message on the connection.
func sendJSON(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := NewEnvelope(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandler_InitialAreas(t *testing.T) {
	handler, _ := testHandler(nil)
	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	env := readJSON(t, conn)
	assert.Equal(t, TypeAreas, env.Type)

	var p AreasPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Len(t, p.Areas, 2)
	assert.Equal(t, "tampere-1", p.Areas[0].Name)
	assert.Equal(t, "viinikka-1", p.Areas[1].Name)
	assert.Equal(t, []string{"KV-0125-C01", "KV-0125-C02"}, p.Areas[1].Entities)
}

func TestHandler_AnalyzeStreamsReports(t *testing.T) {
	handler, analyzer := testHandler(nil)
	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	readJSON(t, conn) // areas:list

	sendJSON(t, conn, TypeSubscribe, SubscribePayload{Area: "viinikka-1"})
	sendJSON(t, conn, TypeAnalyze, AnalyzePayload{Area: "viinikka-1", Date: "2019-07-10"})

	first := readJSON(t, conn)
	second := readJSON(t, conn)
	done := readJSON(t, conn)

	assert.Equal(t, TypeDayReport, first.Type)
	assert.Equal(t, TypeDayReport, second.Type)
	require.Equal(t, TypeAreaDone, done.Type)

	var p AreaDonePayload
	require.NoError(t, json.Unmarshal(done.Payload, &p))
	assert.Equal(t, "viinikka-1", p.Area)
	assert.Equal(t, 2, p.Entities)
	assert.Equal(t, "100 Wh", p.EnergyText)

	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	assert.Equal(t, []string{"viinikka-1@2019-07-10"}, analyzer.calls)
}

func TestHandler_AnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload AnalyzePayload
		err     error
		want    string
	}{
		{name: "unknown area", payload: AnalyzePayload{Area: "nowhere", Date: "2019-07-10"}, want: "unknown area nowhere"},
		{name: "bad date", payload: AnalyzePayload{Area: "tampere-1", Date: "10.7.2019"}, want: "parsing date"},
		{name: "engine failure", payload: AnalyzePayload{Area: "tampere-1", Date: "2019-07-10"}, err: errors.New("store down"), want: "store down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := testHandler(tt.err)
			conn, cleanup := dialHandler(t, handler)
			defer cleanup()
			readJSON(t, conn)

			sendJSON(t, conn, TypeAnalyze, tt.payload)
			env := readJSON(t, conn)
			require.Equal(t, TypeError, env.Type)

			var p ErrorPayload
			require.NoError(t, json.Unmarshal(env.Payload, &p))
			assert.Contains(t, p.Message, tt.want)
		})
	}
}

func TestHandler_InvalidMessage(t *testing.T) {
	handler, _ := testHandler(nil)
	conn, cleanup := dialHandler(t, handler)
	defer cleanup()
	readJSON(t, conn)

	// Send invalid JSON, should not crash
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readJSON(t, conn)
	assert.Equal(t, TypeError, env.Type)

	// Connection is still alive.
	sendJSON(t, conn, "bogus", nil)
	env = readJSON(t, conn)
	assert.Equal(t, TypeError, env.Type)
}

func TestHandler_SubscriptionFilters(t *testing.T) {
	handler, _ := testHandler(nil)
	conn, cleanup := dialHandler(t, handler)
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeSubscribe, SubscribePayload{Area: "tampere-1"})
	// Reports of viinikka-1 are filtered, only the completion reaches us.
	sendJSON(t, conn, TypeAnalyze, AnalyzePayload{Area: "viinikka-1", Date: "2019-07-10"})

	env := readJSON(t, conn)
	assert.Equal(t, TypeAreaDone, env.Type)
}
