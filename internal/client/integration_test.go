package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/NolanKnievel/bucket-list-sub001/internal/adapters/http"
	"github.com/NolanKnievel/bucket-list-sub001/internal/adapters/signal"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app/stats"
	"github.com/NolanKnievel/bucket-list-sub001/internal/client"
	"github.com/NolanKnievel/bucket-list-sub001/internal/config"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/NolanKnievel/bucket-list-sub001/internal/store"
)

func startServer(t *testing.T) string {
	t.Helper()
	hub := app.NewHub(app.HubConfig{})
	go hub.Run(context.Background())
	orch := &app.Orchestrator{Store: store.NewMemory(), Hub: hub}
	ctl := signal.NewSignalWSController(hub, orch, signal.Config{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	srv := httptest.NewServer(httpadapter.SetupRouter(cfg, httpadapter.Deps{
		Groups: orch,
		Stats:  stats.NewService(hub),
		Signal: ctl,
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ctl.Shutdown(ctx)
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	return srv.URL
}

func newManager(t *testing.T, baseURL string) *client.Manager {
	t.Helper()
	m := client.NewManager(client.Options{
		Dialer:      client.WSDialer{BaseURL: baseURL},
		Backoff:     client.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond},
		MaxAttempts: 3,
	})
	t.Cleanup(m.Close)
	return m
}

func waitConnected(t *testing.T, m *client.Manager) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == client.Connected }, 3*time.Second, 5*time.Millisecond)
}

func TestLiveSync(t *testing.T) {
	base := startServer(t)
	ctx := context.Background()

	ana := client.NewAPI(base)
	created, err := ana.CreateGroup(ctx, "Summer", "road trip", "Ana")
	require.NoError(t, err)
	groupID := created.Group.ID

	var mu sync.Mutex
	var joined []string
	var anaAdded, benAdded []protocol.ItemAdded
	var anaUpdated []protocol.ItemUpdated

	anaConn := newManager(t, base)
	anaConn.OnMemberJoined(func(m domain.Member) {
		mu.Lock()
		joined = append(joined, m.Name)
		mu.Unlock()
	})
	anaConn.OnItemAdded(func(p protocol.ItemAdded) {
		mu.Lock()
		anaAdded = append(anaAdded, p)
		mu.Unlock()
	})
	anaConn.OnItemUpdated(func(p protocol.ItemUpdated) {
		mu.Lock()
		anaUpdated = append(anaUpdated, p)
		mu.Unlock()
	})
	anaConn.Connect(groupID, created.Member.ID)
	waitConnected(t, anaConn)
	require.Eventually(t, func() bool {
		st, err := ana.RoomStats(ctx, groupID)
		return err == nil && st.ConnectionCount == 1
	}, 3*time.Second, 5*time.Millisecond)

	ben := client.NewAPI(base)
	benMember, err := ben.JoinGroup(ctx, groupID, "Ben")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(joined) == 1 && joined[0] == "Ben"
	}, 3*time.Second, 5*time.Millisecond)

	benConn := newManager(t, base)
	benConn.OnItemAdded(func(p protocol.ItemAdded) {
		mu.Lock()
		benAdded = append(benAdded, p)
		mu.Unlock()
	})
	benConn.Connect(groupID, benMember.ID)
	waitConnected(t, benConn)
	require.Eventually(t, func() bool {
		st, err := ben.RoomStats(ctx, groupID)
		return err == nil && st.ConnectionCount == 2
	}, 3*time.Second, 5*time.Millisecond)

	itemID := domain.ItemID(uuid.NewString())
	require.NoError(t, anaConn.AddItem(protocol.ItemInput{ID: itemID, Title: "See the coast"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(benAdded) == 1
	}, 3*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, itemID, benAdded[0].Item.ID)
	assert.Equal(t, created.Member.ID, benAdded[0].Item.MemberID)
	mu.Unlock()

	require.NoError(t, benConn.ToggleCompletion(itemID, true))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(anaUpdated) == 1
	}, 3*time.Second, 5*time.Millisecond)

	// the room is ordered, so an echo of Ana's own item would already be here
	mu.Lock()
	assert.Empty(t, anaAdded)
	assert.True(t, anaUpdated[0].Completed)
	mu.Unlock()

	snap, err := ben.Snapshot(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, itemID, snap.Items[0].ID)
	assert.True(t, snap.Items[0].Completed)
	assert.Len(t, snap.Members, 2)

	assert.Empty(t, anaConn.Disconnect())
	require.Eventually(t, func() bool {
		st, err := ben.RoomStats(ctx, groupID)
		return err == nil && st.ConnectionCount == 1
	}, 3*time.Second, 5*time.Millisecond)
}

func TestStrangerIsRejected(t *testing.T) {
	base := startServer(t)
	ctx := context.Background()

	created, err := client.NewAPI(base).CreateGroup(ctx, "Summer", "", "Ana")
	require.NoError(t, err)

	errs := make(chan *client.Error, 4)
	m := newManager(t, base)
	m.OnError(func(e *client.Error) { errs <- e })
	m.Connect(created.Group.ID, domain.MemberID(uuid.NewString()))

	select {
	case e := <-errs:
		assert.Equal(t, client.KindAuth, e.Kind)
		assert.True(t, e.Terminal())
	case <-time.After(3 * time.Second):
		t.Fatal("no auth error")
	}
	require.Eventually(t, func() bool { return m.State() == client.Failed }, 3*time.Second, 5*time.Millisecond)
}

func TestAPIErrors(t *testing.T) {
	base := startServer(t)
	ctx := context.Background()
	api := client.NewAPI(base, client.WithTimeout(2*time.Second))

	_, err := api.Snapshot(ctx, domain.GroupID(uuid.NewString()))
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = api.CreateGroup(ctx, "", "", "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	st, err := api.RoomStats(ctx, domain.GroupID(uuid.NewString()))
	require.NoError(t, err)
	assert.False(t, st.Exists)
}
