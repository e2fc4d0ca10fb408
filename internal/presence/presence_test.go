package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/dispatch"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/models"
	"github.com/Cloudtempmonitor/templogger/internal/recipient"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStatusStore 内存版设备状态，MarkOffline/MarkOnline 为条件翻转
type fakeStatusStore struct {
	mu         sync.Mutex
	devices    map[string]*models.Device
	staleList  []models.Device // 非空时 ListStaleDevices 直接返回它
	listErr    error
	markErr    map[string]error
	lastCutoff time.Time
}

func (s *fakeStatusStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStatusStore) ListStaleDevices(ctx context.Context, cutoff time.Time) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCutoff = cutoff
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.staleList != nil {
		return s.staleList, nil
	}
	var out []models.Device
	for _, d := range s.devices {
		if !d.IsOffline && d.StatusTimestamp != nil && d.StatusTimestamp.Before(cutoff) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStatusStore) MarkOffline(ctx context.Context, deviceID string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErr[deviceID]; err != nil {
		return false, err
	}
	d := s.devices[deviceID]
	if d == nil || d.IsOffline || d.StatusTimestamp == nil || !d.StatusTimestamp.Before(cutoff) {
		return false, nil
	}
	d.IsOffline = true
	return true, nil
}

func (s *fakeStatusStore) MarkOnline(ctx context.Context, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.devices[deviceID]
	if d == nil || !d.IsOffline {
		return false, nil
	}
	d.IsOffline = false
	return true, nil
}

type fakeUsers struct{ users []models.User }

func (f *fakeUsers) FindNotifiableUsers(ctx context.Context, deviceID string, channel models.Channel) ([]models.User, error) {
	return f.users, nil
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []models.PushMessage
}

func (r *recordingSender) SendMulticast(ctx context.Context, tokens []string, msg models.PushMessage) ([]dispatch.TokenResult, error) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	out := make([]dispatch.TokenResult, len(tokens))
	for i, token := range tokens {
		out[i] = dispatch.TokenResult{Token: token, Success: true}
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }

var fixedNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*fakeStatusStore, *recordingSender, *recipient.Resolver, *dispatch.PushDispatcher, *metrics.Metrics) {
	stale := fixedNow.Add(-5 * time.Minute)
	fresh := fixedNow.Add(-30 * time.Second)
	store := &fakeStatusStore{devices: map[string]*models.Device{
		"AA:BB:CC": {DeviceID: "AA:BB:CC", Name: "Freezer 01", StatusTimestamp: &stale},
		"DD:EE:FF": {DeviceID: "DD:EE:FF", Name: "Geladeira 02", StatusTimestamp: &fresh},
		"11:22:33": {DeviceID: "11:22:33", Name: "Nunca reportou"},
	}}
	users := &fakeUsers{users: []models.User{
		{UserID: "u1", Active: true, PushEnabled: boolPtr(true),
			DeviceAccess: []string{"AA:BB:CC", "DD:EE:FF"}, PushTokens: []string{"tok-1"}},
	}}
	sender := &recordingSender{}
	logger := zap.NewNop()
	return store, sender, recipient.NewResolver(users, logger), dispatch.NewPushDispatcher(sender, logger), metrics.New(prometheus.NewRegistry())
}

func TestSweep_FlipsStaleDevicesOnce(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	sweeper := NewSweeper(store, 200*time.Second, recipients, push, m, "/device-details.html?mac=", zap.NewNop())
	sweeper.now = func() time.Time { return fixedNow }

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stale)
	assert.Equal(t, 1, result.Flipped)
	assert.Equal(t, fixedNow.Add(-200*time.Second), store.lastCutoff)

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "offline", sender.msgs[0].Data["type"])
	assert.Equal(t, "AA:BB:CC", sender.msgs[0].Data["deviceId"])
	assert.Equal(t, "/device-details.html?mac=AA:BB:CC", sender.msgs[0].Data["url"])
	assert.True(t, store.devices["AA:BB:CC"].IsOffline)
	assert.False(t, store.devices["11:22:33"].IsOffline)

	// 第二轮：已经离线，不再通知
	result, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Flipped)
	assert.Len(t, sender.msgs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PresenceFlipsTotal.WithLabelValues("offline")))
}

func TestSweep_LostFlipDoesNotNotify(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	sweeper := NewSweeper(store, 200*time.Second, recipients, push, m, "", zap.NewNop())
	sweeper.now = func() time.Time { return fixedNow }

	// 列表返回后，另一个实例先完成了翻转
	devices, err := store.ListStaleDevices(context.Background(), fixedNow.Add(-200*time.Second))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	flipped, err := store.MarkOffline(context.Background(), "AA:BB:CC", fixedNow.Add(-200*time.Second))
	require.NoError(t, err)
	require.True(t, flipped)
	store.staleList = devices

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stale)
	assert.Equal(t, 0, result.Flipped)
	assert.Empty(t, sender.msgs)
}

func TestSweep_DeviceReportedAfterListingStaysOnline(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	sweeper := NewSweeper(store, 200*time.Second, recipients, push, m, "", zap.NewNop())
	sweeper.now = func() time.Time { return fixedNow }

	devices, err := store.ListStaleDevices(context.Background(), fixedNow.Add(-200*time.Second))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	store.staleList = devices

	// 列表之后设备又上报了一次
	store.mu.Lock()
	reported := fixedNow.Add(-time.Second)
	store.devices["AA:BB:CC"].StatusTimestamp = &reported
	store.mu.Unlock()

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stale)
	assert.Equal(t, 0, result.Flipped)
	assert.False(t, store.devices["AA:BB:CC"].IsOffline)
	assert.Empty(t, sender.msgs)
}

func TestSweep_Errors(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	sweeper := NewSweeper(store, 200*time.Second, recipients, push, m, "", zap.NewNop())
	sweeper.now = func() time.Time { return fixedNow }

	store.markErr = map[string]error{"AA:BB:CC": errors.New("deadlock detected")}
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Empty(t, sender.msgs)

	store.listErr = errors.New("connection refused")
	_, err = sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func deviceChange(t *testing.T, before, after map[string]any) models.DocumentChange {
	c := models.DocumentChange{Path: "devices/AA:BB:CC"}
	if before != nil {
		raw, err := json.Marshal(before)
		require.NoError(t, err)
		c.Before = raw
	}
	if after != nil {
		raw, err := json.Marshal(after)
		require.NoError(t, err)
		c.After = raw
	}
	return c
}

func TestRecovery_FresherTimestampFlipsOnline(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	store.devices["AA:BB:CC"].IsOffline = true
	recovery := NewRecovery(store, recipients, push, m, "", zap.NewNop())

	c := deviceChange(t,
		map[string]any{"statusTimestamp": map[string]any{"seconds": 1741614900}, "isOffline": true},
		map[string]any{"statusTimestamp": map[string]any{"seconds": 1741615200}, "isOffline": true},
	)
	flipped, err := recovery.Handle(context.Background(), "AA:BB:CC", c)
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.False(t, store.devices["AA:BB:CC"].IsOffline)

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "online", sender.msgs[0].Data["type"])
	assert.Contains(t, sender.msgs[0].Title, "Freezer 01")

	// 重投同一变更：已经在线，不再通知
	flipped, err = recovery.Handle(context.Background(), "AA:BB:CC", c)
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.Len(t, sender.msgs, 1)
}

func TestRecovery_Ignored(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	store.devices["AA:BB:CC"].IsOffline = true
	recovery := NewRecovery(store, recipients, push, m, "", zap.NewNop())

	cases := map[string]models.DocumentChange{
		"older timestamp": deviceChange(t,
			map[string]any{"statusTimestamp": "2025-03-10T14:00:00Z"},
			map[string]any{"statusTimestamp": "2025-03-10T13:00:00Z"}),
		"same timestamp": deviceChange(t,
			map[string]any{"statusTimestamp": 1741615200000},
			map[string]any{"statusTimestamp": 1741615200000}),
		"no timestamp": deviceChange(t,
			map[string]any{"name": "a"},
			map[string]any{"name": "b"}),
		"deleted": deviceChange(t,
			map[string]any{"statusTimestamp": 1741615200000}, nil),
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			flipped, err := recovery.Handle(context.Background(), "AA:BB:CC", c)
			require.NoError(t, err)
			assert.False(t, flipped)
		})
	}
	assert.Empty(t, sender.msgs)
	assert.True(t, store.devices["AA:BB:CC"].IsOffline)
}

func TestRecovery_OnlineDeviceNotNotified(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	recovery := NewRecovery(store, recipients, push, m, "", zap.NewNop())

	flipped, err := recovery.Handle(context.Background(), "AA:BB:CC", deviceChange(t,
		map[string]any{"statusTimestamp": 1741615100000},
		map[string]any{"statusTimestamp": 1741615200000},
	))
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.Empty(t, sender.msgs)
}

func TestScheduler(t *testing.T) {
	store, sender, recipients, push, m := newFixture(t)
	sweeper := NewSweeper(store, 200*time.Second, recipients, push, m, "", zap.NewNop())
	sweeper.now = func() time.Time { return fixedNow }

	_, err := NewScheduler("not a spec", sweeper, zap.NewNop())
	assert.Error(t, err)

	s, err := NewScheduler("@every 1m", sweeper, zap.NewNop())
	require.NoError(t, err)
	s.Start(context.Background())
	s.run()
	s.Stop()

	assert.Len(t, sender.msgs, 1)
	assert.True(t, store.devices["AA:BB:CC"].IsOffline)
}
