package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Parzival4o4/drawing-app/eventlog"
	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/service"
	storemocks "github.com/Parzival4o4/drawing-app/store/mocks"
)

const testCanvasID = "canvas-1"

func liveClaims(userID int64, level models.PermissionLevel) service.Claims {
	return service.Claims{
		UserID:      userID,
		Email:       "user@example.com",
		DisplayName: "User",
		Permissions: map[string]models.PermissionLevel{testCanvasID: level},
		SoftReissueAt: time.Now().Add(30 * time.Second).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
}

func newTestClient(level models.PermissionLevel, userID int64) *Client {
	return NewClient(nil, nil, liveClaims(userID, level), nil)
}

func newTestHub(t *testing.T, moderated bool, mockStore *storemocks.MockStore) (*CanvasHub, *eventlog.Log) {
	t.Helper()
	elStore, err := eventlog.NewStore(t.TempDir())
	require.NoError(t, err)
	eventFile := elStore.Open(testCanvasID)
	return newCanvasHub(testCanvasID, moderated, eventFile, mockStore), eventFile
}

// readFrame pops the next outbound frame of a client, or fails the test.
func readFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case message := <-c.Send:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(message, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case message := <-c.Send:
		t.Fatalf("unexpected frame: %s", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_PreambleBeforeLiveEvents(t *testing.T) {
	hub, eventFile := newTestHub(t, false, new(storemocks.MockStore))

	// Pre-existing history.
	for _, r := range []string{`{"seq":1}`, `{"seq":2}`, `{"seq":3}`} {
		require.NoError(t, eventFile.Append(json.RawMessage(r)))
	}

	reader := newTestClient(models.PermissionRead, 1)
	require.NoError(t, hub.Subscribe(reader))

	history := readFrame(t, reader)
	assert.Equal(t, testCanvasID, history["canvasId"])
	events := history["eventsForCanvas"].([]any)
	require.Len(t, events, 3)
	assert.Equal(t, float64(1), events[0].(map[string]any)["seq"])
	assert.Equal(t, float64(3), events[2].(map[string]any)["seq"])

	moderated := readFrame(t, reader)
	assert.Equal(t, false, moderated["moderated"])

	permission := readFrame(t, reader)
	assert.Equal(t, "R", permission["yourPermission"])

	// Live traffic only after the full preamble.
	writer := newTestClient(models.PermissionWrite, 2)
	require.NoError(t, hub.Subscribe(writer))
	for range 3 {
		readFrame(t, writer)
	}

	require.NoError(t, hub.AppendAndBroadcast(writer, json.RawMessage(`{"seq":4}`)))
	live := readFrame(t, reader)
	liveEvents := live["eventsForCanvas"].([]any)
	require.Len(t, liveEvents, 1)
	assert.Equal(t, float64(4), liveEvents[0].(map[string]any)["seq"])
}

func TestSubscribe_EmptyHistoryIsEmptyBatch(t *testing.T) {
	hub, _ := newTestHub(t, false, new(storemocks.MockStore))

	reader := newTestClient(models.PermissionRead, 1)
	require.NoError(t, hub.Subscribe(reader))

	history := readFrame(t, reader)
	events, ok := history["eventsForCanvas"].([]any)
	require.True(t, ok, "history batch must be an array even when empty")
	assert.Empty(t, events)
}

func TestSubscribe_NoPermission(t *testing.T) {
	hub, _ := newTestHub(t, false, new(storemocks.MockStore))

	stranger := newTestClient(models.PermissionNone, 1)
	err := hub.Subscribe(stranger)
	assert.ErrorIs(t, err, ErrNotPermitted)
	assertNoFrame(t, stranger)
}

func TestAppendAndBroadcast_EchoesToOriginator(t *testing.T) {
	hub, eventFile := newTestHub(t, false, new(storemocks.MockStore))

	writer := newTestClient(models.PermissionWrite, 1)
	reader := newTestClient(models.PermissionRead, 2)
	require.NoError(t, hub.Subscribe(writer))
	require.NoError(t, hub.Subscribe(reader))
	for range 3 {
		readFrame(t, writer)
		readFrame(t, reader)
	}

	event := `{"type":"shapeAdded","shape":{"from":{"x":1,"y":2},"to":{"x":3,"y":4}},"redraw":true}`
	require.NoError(t, hub.AppendAndBroadcast(writer, json.RawMessage(event)))

	for _, c := range []*Client{writer, reader} {
		frame := readFrame(t, c)
		assert.Equal(t, testCanvasID, frame["canvasId"])
		got, err := json.Marshal(frame["eventsForCanvas"].([]any)[0])
		require.NoError(t, err)
		assert.JSONEq(t, event, string(got))
	}

	records, err := eventFile.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, event, string(records[0]))
}

func TestAppendAndBroadcast_ReaderRejected(t *testing.T) {
	hub, eventFile := newTestHub(t, false, new(storemocks.MockStore))

	reader := newTestClient(models.PermissionRead, 1)
	require.NoError(t, hub.Subscribe(reader))
	for range 3 {
		readFrame(t, reader)
	}

	err := hub.AppendAndBroadcast(reader, json.RawMessage(`{"seq":1}`))
	assert.ErrorIs(t, err, ErrNotPermitted)
	assertNoFrame(t, reader)

	records, err := eventFile.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppendAndBroadcast_ModerationGate(t *testing.T) {
	hub, eventFile := newTestHub(t, true, new(storemocks.MockStore))

	writer := newTestClient(models.PermissionWrite, 1)
	vip := newTestClient(models.PermissionVIP, 2)
	require.NoError(t, hub.Subscribe(writer))
	require.NoError(t, hub.Subscribe(vip))
	for range 3 {
		readFrame(t, writer)
		readFrame(t, vip)
	}

	// W cannot publish while moderated.
	err := hub.AppendAndBroadcast(writer, json.RawMessage(`{"seq":1}`))
	assert.ErrorIs(t, err, ErrNotPermitted)

	// V bypasses moderation.
	require.NoError(t, hub.AppendAndBroadcast(vip, json.RawMessage(`{"seq":2}`)))
	frame := readFrame(t, writer)
	got, err := json.Marshal(frame["eventsForCanvas"].([]any)[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":2}`, string(got))

	records, err := eventFile.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"seq":2}`, string(records[0]))
}

func TestToggleModerated_PersistsAndBroadcasts(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	hub, _ := newTestHub(t, false, mockStore)

	mod := newTestClient(models.PermissionModerator, 1)
	writer := newTestClient(models.PermissionWrite, 2)
	require.NoError(t, hub.Subscribe(mod))
	require.NoError(t, hub.Subscribe(writer))
	for range 3 {
		readFrame(t, mod)
		readFrame(t, writer)
	}

	mockStore.On("SetModerated", mod.ctx, testCanvasID, true).Return(nil)

	require.NoError(t, hub.ToggleModerated(mod.ctx, mod))
	assert.True(t, hub.Moderated())
	for _, c := range []*Client{mod, writer} {
		frame := readFrame(t, c)
		assert.Equal(t, true, frame["moderated"])
	}
	mockStore.AssertExpectations(t)
}

func TestToggleModerated_RequiresModerator(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	hub, _ := newTestHub(t, false, mockStore)

	vip := newTestClient(models.PermissionVIP, 1)
	require.NoError(t, hub.Subscribe(vip))
	for range 3 {
		readFrame(t, vip)
	}

	err := hub.ToggleModerated(vip.ctx, vip)
	assert.ErrorIs(t, err, ErrNotPermitted)
	assert.False(t, hub.Moderated())
	assertNoFrame(t, vip)
	mockStore.AssertNotCalled(t, "SetModerated")
}

func TestSetModerated_SameStateIsNoOp(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	hub, _ := newTestHub(t, false, mockStore)

	mod := newTestClient(models.PermissionModerator, 1)
	require.NoError(t, hub.Subscribe(mod))
	for range 3 {
		readFrame(t, mod)
	}

	require.NoError(t, hub.SetModerated(mod.ctx, mod, false))
	assertNoFrame(t, mod)
	mockStore.AssertNotCalled(t, "SetModerated")
}

func TestToggleModerated_StoreFailureRevertsFlag(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	hub, _ := newTestHub(t, false, mockStore)

	mod := newTestClient(models.PermissionModerator, 1)
	require.NoError(t, hub.Subscribe(mod))
	for range 3 {
		readFrame(t, mod)
	}

	mockStore.On("SetModerated", mod.ctx, testCanvasID, true).Return(assert.AnError)

	err := hub.ToggleModerated(mod.ctx, mod)
	assert.Error(t, err)
	assert.False(t, hub.Moderated())
	assertNoFrame(t, mod)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	hub, _ := newTestHub(t, false, new(storemocks.MockStore))

	reader := newTestClient(models.PermissionRead, 1)
	require.NoError(t, hub.Subscribe(reader))
	for range 3 {
		readFrame(t, reader)
	}

	hub.Unsubscribe(reader)
	hub.Unsubscribe(reader)

	writer := newTestClient(models.PermissionWrite, 2)
	require.NoError(t, hub.Subscribe(writer))
	for range 3 {
		readFrame(t, writer)
	}
	require.NoError(t, hub.AppendAndBroadcast(writer, json.RawMessage(`{"seq":1}`)))
	assertNoFrame(t, reader)
}

func TestConcurrentAppends_SameOrderForAllSubscribers(t *testing.T) {
	hub, eventFile := newTestHub(t, false, new(storemocks.MockStore))

	const perWriter = 100

	w1 := newTestClient(models.PermissionWrite, 1)
	w2 := newTestClient(models.PermissionWrite, 2)
	r1 := newTestClient(models.PermissionRead, 3)
	r2 := newTestClient(models.PermissionRead, 4)
	for _, c := range []*Client{w1, w2, r1, r2} {
		require.NoError(t, hub.Subscribe(c))
	}

	// Drain every client concurrently so nobody's buffer fills up.
	received := make(map[*Client][]string)
	var recvMu sync.Mutex
	var recvWg sync.WaitGroup
	done := make(chan struct{})
	for _, c := range []*Client{w1, w2, r1, r2} {
		recvWg.Add(1)
		go func(c *Client) {
			defer recvWg.Done()
			for {
				select {
				case message := <-c.Send:
					recvMu.Lock()
					received[c] = append(received[c], string(message))
					recvMu.Unlock()
				case <-done:
					return
				}
			}
		}(c)
	}

	var sendWg sync.WaitGroup
	for _, w := range []*Client{w1, w2} {
		sendWg.Add(1)
		go func(w *Client) {
			defer sendWg.Done()
			for i := 0; i < perWriter; i++ {
				event, err := json.Marshal(map[string]any{"writer": w.UserID(), "seq": i})
				require.NoError(t, err)
				require.NoError(t, hub.AppendAndBroadcast(w, event))
			}
		}(w)
	}
	sendWg.Wait()

	// Let the drains catch up, then stop them.
	deadline := time.Now().Add(2 * time.Second)
	for {
		recvMu.Lock()
		caughtUp := len(received[r1]) >= 3+perWriter*2 && len(received[r2]) >= 3+perWriter*2
		recvMu.Unlock()
		if caughtUp || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(done)
	recvWg.Wait()

	records, err := eventFile.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, perWriter*2)

	// Every subscriber saw the same sequence of live frames (after its own
	// 3-frame preamble + history, which differ per join time).
	live1 := received[r1][3:]
	live2 := received[r2][3:]
	require.Len(t, live1, perWriter*2)
	assert.Equal(t, live1, live2)
}
