package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"shortstacks/database/testdb"
	"shortstacks/models"
	"shortstacks/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	mu   sync.Mutex
	sent map[uint][]map[string]interface{}
}

func (h *fakeHub) BroadcastToUser(userID uint, message interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = map[uint][]map[string]interface{}{}
	}
	h.sent[userID] = append(h.sent[userID], message.(map[string]interface{}))
}

type fakeLine struct {
	pushed map[string]string
	fail   bool
}

func (f *fakeLine) PushText(to, text string) error {
	if f.fail {
		return errors.New("line down")
	}
	if f.pushed == nil {
		f.pushed = map[string]string{}
	}
	f.pushed[to] = text
	return nil
}

func TestNormalizeChannels(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{"normal"}},
		{"popup", []string{"popup"}, []string{"normal", "popup"}},
		{"duplicates and unknown", []string{"line", "sms", "normal", "line"}, []string{"normal", "line"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeChannels(tc.in))
		})
	}
}

func TestNotify_DirectInsertFansOut(t *testing.T) {
	db := testdb.New(t)
	alice := testdb.Student(t, db, "alice")
	bob := testdb.Student(t, db, "bob")
	require.NoError(t, db.Model(&alice).Update("line_user_id", "U-alice").Error)

	hub := &fakeHub{}
	line := &fakeLine{}
	svc := NewService(db, nil, true, hub, line)
	assert.False(t, svc.useRedis, "redis queue needs a client")

	err := svc.Notify(context.Background(), []uint{alice.ID, bob.ID}, Message{
		Title:    "Rent due",
		Message:  "Rent of 50.00 is due today",
		Channels: []string{ChannelPopup, ChannelLine},
		Data:     map[string]uint{"bill_id": 9},
	})
	require.NoError(t, err)
	svc.Wait()

	var rows []models.Notification
	require.NoError(t, db.Order("user_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, TypeInfo, rows[0].Type)
	assert.False(t, rows[0].Read)

	var channels []string
	require.NoError(t, json.Unmarshal(rows[0].Channels, &channels))
	assert.Equal(t, []string{"normal", "popup", "line"}, channels)
	assert.JSONEq(t, `{"bill_id":9}`, string(rows[0].Data))

	require.Len(t, hub.sent[alice.ID], 1)
	assert.Equal(t, "notification", hub.sent[alice.ID][0]["type"])
	assert.Equal(t, true, hub.sent[alice.ID][0]["popup"])
	require.Len(t, hub.sent[bob.ID], 1)

	assert.Equal(t, map[string]string{"U-alice": "Rent due\nRent of 50.00 is due today"}, line.pushed)
}

func TestNotify_LineFailureDoesNotFail(t *testing.T) {
	db := testdb.New(t)
	u := testdb.Student(t, db, "carlos")
	require.NoError(t, db.Model(&u).Update("line_user_id", "U-carlos").Error)

	svc := NewService(db, nil, false, nil, &fakeLine{fail: true})
	require.NoError(t, svc.Notify(context.Background(), []uint{u.ID}, Message{Title: "Hi", Message: "there", Channels: []string{ChannelLine}}))
	svc.Wait()

	var n int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

type blockingLine struct {
	release chan struct{}
	pushed  chan string
}

func (b *blockingLine) PushText(to, _ string) error {
	<-b.release
	b.pushed <- to
	return nil
}

func TestNotify_DoesNotWaitForDelivery(t *testing.T) {
	db := testdb.New(t)
	u := testdb.Student(t, db, "dorothy")
	require.NoError(t, db.Model(&u).Update("line_user_id", "U-dorothy").Error)
	line := &blockingLine{release: make(chan struct{}), pushed: make(chan string, 1)}
	svc := NewService(db, nil, false, nil, line)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error, 1)
	go func() {
		returned <- svc.Notify(ctx, []uint{u.ID}, Message{Title: "Paid", Message: "Rent paid", Channels: []string{ChannelLine}})
	}()

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on the LINE push")
	}
	// the request is over; delivery carries on without its context
	cancel()
	close(line.release)
	svc.Wait()

	assert.Equal(t, "U-dorothy", <-line.pushed)
	var n int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", u.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestNotify_RequiresRecipients(t *testing.T) {
	svc := NewService(testdb.New(t), nil, false, nil, nil)
	assert.Error(t, svc.Notify(context.Background(), nil, Message{Title: "x"}))
}

func TestInbox(t *testing.T) {
	db := testdb.New(t)
	u := testdb.Student(t, db, "wanda")
	other := testdb.Student(t, db, "tim")
	svc := NewService(db, nil, false, nil, nil)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, svc.Notify(ctx, []uint{u.ID}, Message{Title: title, Message: title}))
		svc.Wait()
	}
	require.NoError(t, svc.Notify(ctx, []uint{other.ID}, Message{Title: "theirs", Message: "theirs"}))
	svc.Wait()

	page, total, err := svc.List(ctx, u.ID, 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "three", page[0].Title)

	unread, err := svc.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	require.NoError(t, svc.MarkRead(ctx, u.ID, page[0].ID))
	err = svc.MarkRead(ctx, other.ID, page[1].ID)
	assert.True(t, utils.IsKind(err, utils.KindNotFound), "cannot mark someone else's notification")

	_, total, err = svc.List(ctx, u.ID, 1, 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	n, err := svc.MarkAllRead(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = svc.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = svc.UnreadCount(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}
