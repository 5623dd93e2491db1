package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranav24547/Ai-Surveillance-System/internal/evidence"
	"github.com/pranav24547/Ai-Surveillance-System/internal/live"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/runner"
)

type fakeController struct {
	mu   sync.Mutex
	cmds []models.ControlCommand
	err  error
}

func (f *fakeController) Apply(_ context.Context, cmd models.ControlCommand) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return map[string]string{"action": string(cmd.Action)}, nil
}

func (f *fakeController) Status() runner.Status {
	return runner.Status{Status: "running", Viewers: 2}
}

func (f *fakeController) commands() []models.ControlCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ControlCommand(nil), f.cmds...)
}

type fakeEvidence struct {
	records []models.EvidenceRecord
	images  map[string][]byte
}

func (f *fakeEvidence) ListRecent(limit int, weaponType string) []models.EvidenceRecord {
	var out []models.EvidenceRecord
	for _, r := range f.records {
		if weaponType != "" && r.WeaponType != weaponType {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeEvidence) Image(id string, annotated bool) ([]byte, error) {
	key := id
	if annotated {
		key += "/annotated"
	}
	data, ok := f.images[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", evidence.ErrNotFound, id)
	}
	return data, nil
}

type fakeHistory []models.AlertRecord

func (f fakeHistory) Recent(limit int) []models.AlertRecord {
	if len(f) > limit {
		return f[:limit]
	}
	return f
}

type fixture struct {
	control *fakeController
	hub     *live.Hub
	server  *httptest.Server
}

func newFixture(t *testing.T, apiKeys ...string) *fixture {
	t.Helper()
	f := &fixture{control: &fakeController{}, hub: live.NewHub(8)}
	ev := &fakeEvidence{
		records: []models.EvidenceRecord{
			{ID: "EVD_2", WeaponType: "knife"},
			{ID: "EVD_1", WeaponType: "gun"},
		},
		images: map[string][]byte{
			"EVD_1":           []byte("raw-jpeg"),
			"EVD_1/annotated": []byte("annotated-jpeg"),
		},
	}
	history := fakeHistory{{WeaponType: "gun", Channels: []string{"log"}}}

	h := NewHandlers(f.control, ev, history, f.hub)
	f.server = httptest.NewServer(NewRouter(h, apiKeys))
	t.Cleanup(func() {
		f.hub.CloseAll()
		f.server.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStatusAndInfo(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := decode(t, resp)
	assert.Equal(t, "running", body["status"])
	assert.EqualValues(t, 2, body["viewers"])

	resp = f.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/ws/stream", decode(t, resp)["stream"])
}

func TestGetDetections(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/detections?weapon_type=gun", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.EqualValues(t, 1, body["count"])

	resp = f.do(t, http.MethodGet, "/api/detections?limit=1", "", nil)
	body = decode(t, resp)
	assert.EqualValues(t, 1, body["count"])

	for _, q := range []string{"zero", "0", "101"} {
		resp = f.do(t, http.MethodGet, "/api/detections?limit="+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
	resp = f.do(t, http.MethodGet, "/api/detections?limit=100", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetAlerts(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/alerts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.EqualValues(t, 1, body["count"])

	resp = f.do(t, http.MethodGet, "/api/alerts?limit=50", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/alerts?limit=51", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetEvidenceImage(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/evidence/EVD_1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodGet, "/api/evidence/EVD_1?annotated=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "annotated-jpeg", string(data))

	resp = f.do(t, http.MethodGet, "/api/evidence/EVD_404", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/evidence/EVD_1?annotated=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/config",
		`{"confidence_threshold":0.8,"alerts_enabled":false,"cooldown_seconds":30}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cmds := f.control.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, models.CommandSetThreshold, cmds[0].Action)
	assert.InDelta(t, 0.8, cmds[0].Value, 1e-9)
	assert.Equal(t, models.CommandSetAlertsEnabled, cmds[1].Action)
	require.NotNil(t, cmds[1].Enabled)
	assert.False(t, *cmds[1].Enabled)
	assert.Equal(t, models.CommandSetCooldown, cmds[2].Action)
	assert.InDelta(t, 30, cmds[2].Value, 1e-9)
}

func TestUpdateConfigRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`not json`,
		`{}`,
		`{"confidence_threshold":1.5}`,
		`{"confidence_threshold":0.5,"cooldown_seconds":-1}`,
	} {
		resp := f.do(t, http.MethodPost, "/api/config", body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Empty(t, f.control.commands())
}

func TestAlertAndEvidenceCommands(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/alerts/test", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/alerts/reset-cooldown?weapon_type=gun", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/evidence", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cmds := f.control.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, models.CommandTestAlert, cmds[0].Action)
	assert.Equal(t, models.CommandResetCooldown, cmds[1].Action)
	assert.Equal(t, "gun", cmds[1].WeaponType)
	assert.Equal(t, models.CommandClearEvidence, cmds[2].Action)

	f.control.mu.Lock()
	f.control.err = errors.New("disk full")
	f.control.mu.Unlock()
	resp = f.do(t, http.MethodDelete, "/api/evidence", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAPIKeyGuardsMutatingRoutes(t *testing.T) {
	f := newFixture(t, "secret")

	resp := f.do(t, http.MethodDelete, "/api/evidence", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/evidence", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/evidence", "", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, f.control.commands(), 1)
}

func TestStreamDeliversFramesAndHonoursStop(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var greeting models.StreamEvent
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, "connected", greeting.Type)

	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.BroadcastFrame([]byte{0xff, 0xd8, 0xff})
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	f.hub.BroadcastEvent(models.StreamEvent{Type: "detection", Data: &models.Detection{ClassName: "gun"}})
	var event models.StreamEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "detection", event.Type)
	require.NotNil(t, event.Data)
	assert.Equal(t, "gun", event.Data.ClassName)

	require.NoError(t, conn.WriteJSON(live.ControlMessage{Action: live.ActionStop}))
	require.Eventually(t, func() bool { return f.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestValidKey(t *testing.T) {
	keys := []string{"a", "bb"}
	assert.True(t, validKey("bb", keys))
	assert.False(t, validKey("", keys))
	assert.False(t, validKey("b", keys))
}
