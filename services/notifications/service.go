package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"shortstacks/models"
	"shortstacks/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notification types
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Delivery channels. "normal" is the in-app inbox and is always present.
const (
	ChannelNormal = "normal"
	ChannelPopup  = "popup"
	ChannelLine   = "line"
)

const (
	redisListKey    = "notifications:queue"
	deliveryTimeout = 30 * time.Second
)

// Message is what callers hand to Notify.
type Message struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
	Data     any      `json:"data,omitempty"`
}

// Notifier delivers a message to users. Financial operations call it after
// commit and only log its failures.
type Notifier interface {
	Notify(ctx context.Context, userIDs []uint, msg Message) error
}

// Queue item structure stored in Redis
type queuedNotification struct {
	UserIDs   []uint    `json:"user_ids"`
	Message   Message   `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// WSHub interface for WebSocket broadcasting
type WSHub interface {
	BroadcastToUser(userID uint, message interface{})
}

// LinePusher sends a plain text push message to a LINE user.
type LinePusher interface {
	PushText(to, text string) error
}

// Service stores notifications using a Redis queue when enabled, else by direct insert,
// then fans them out to WebSocket clients and LINE.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
	line     LinePusher
	pending  sync.WaitGroup
}

// NewService wires the notification service. rdb, hub and line may be nil.
func NewService(db *gorm.DB, rdb *redis.Client, useRedis bool, hub WSHub, line LinePusher) *Service {
	return &Service{
		db:       db,
		redis:    rdb,
		useRedis: useRedis && rdb != nil,
		wsHub:    hub,
		line:     line,
	}
}

// normalizeChannels keeps only allowed values and ensures default channel
func normalizeChannels(in []string) []string {
	allowed := map[string]struct{}{ChannelNormal: {}, ChannelPopup: {}, ChannelLine: {}}
	out := []string{ChannelNormal}
	seen := map[string]struct{}{ChannelNormal: {}}
	for _, ch := range in {
		if _, ok := allowed[ch]; !ok {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		out = append(out, ch)
		seen[ch] = struct{}{}
	}
	return out
}

func hasChannel(channels []string, want string) bool {
	for _, ch := range channels {
		if ch == want {
			return true
		}
	}
	return false
}

// Notify stores notifications using Redis queue if enabled, else hands them to a
// background direct insert. It does not wait for delivery.
func (s *Service) Notify(ctx context.Context, userIDs []uint, msg Message) error {
	if len(userIDs) == 0 {
		return errors.New("no user ids")
	}
	if msg.Type == "" {
		msg.Type = TypeInfo
	}
	msg.Channels = normalizeChannels(msg.Channels)

	if s.useRedis {
		b, err := json.Marshal(queuedNotification{UserIDs: userIDs, Message: msg, CreatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("[notif] Redis queue failed, falling back to direct insert")
	}

	s.dispatch(ctx, userIDs, msg)
	return nil
}

// dispatch runs createDirect on its own goroutine with a context that outlives the request.
func (s *Service) dispatch(ctx context.Context, userIDs []uint, msg Message) {
	ids := append([]uint(nil), userIDs...)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := s.createDirect(ctx, ids, msg); err != nil {
			logrus.WithError(err).WithField("recipients", len(ids)).Error("[notif] DB insert failed")
		}
	}()
}

// Wait blocks until every background delivery has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// createDirect writes directly to DB (used by worker or fallback).
func (s *Service) createDirect(ctx context.Context, userIDs []uint, msg Message) error {
	if len(userIDs) == 0 {
		return nil
	}
	// Always set channels JSON; MySQL forbids defaults on JSON columns
	channelsJSON, err := json.Marshal(msg.Channels)
	if err != nil {
		channelsJSON = []byte(`["normal"]`)
	}
	var dataJSON []byte
	if msg.Data != nil {
		if b, err := json.Marshal(msg.Data); err == nil {
			dataJSON = b
		}
	}

	notifs := make([]models.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		notifs = append(notifs, models.Notification{
			UserID:   uid,
			Title:    msg.Title,
			Message:  msg.Message,
			Type:     msg.Type,
			Channels: channelsJSON,
			Data:     dataJSON,
		})
	}
	if err := s.db.WithContext(ctx).Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub != nil {
		for _, n := range notifs {
			s.wsHub.BroadcastToUser(n.UserID, map[string]interface{}{
				"type":  "notification",
				"data":  n,
				"popup": hasChannel(msg.Channels, ChannelPopup),
			})
		}
	}

	if s.line != nil && hasChannel(msg.Channels, ChannelLine) {
		s.pushLine(ctx, userIDs, msg)
	}
	return nil
}

func (s *Service) pushLine(ctx context.Context, userIDs []uint, msg Message) {
	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "line_user_id").
		Where("id IN ? AND line_user_id <> ''", userIDs).Find(&users).Error; err != nil {
		logrus.WithError(err).Warn("[notif] Failed to load LINE recipients")
		return
	}
	for _, u := range users {
		if err := s.line.PushText(u.LineUserID, msg.Title+"\n"+msg.Message); err != nil {
			logrus.WithError(err).WithField("user_id", u.ID).Warn("[notif] LINE push failed")
		}
	}
}

// Run polls the Redis queue and flushes it to the database until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.useRedis {
		logrus.Info("[notif] Redis notifications disabled; worker not started")
		return
	}
	logrus.Info("[notif] Redis notification worker started")
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("[notif] Worker stopping")
			return
		case <-ticker.C:
			s.flushBatch(ctx, 200)
		}
	}
}

// flushBatch polls redis queue and processes notifications in batches.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ { // up to 5 sub-batches per tick
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		// Trim immediately to avoid duplicates (best-effort)
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("[notif] LTrim failed")
		}
		for _, raw := range vals {
			var q queuedNotification
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(ctx, q.UserIDs, q.Message); err != nil {
				logrus.WithError(err).Error("[notif] DB insert failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uint, page, pageSize int, unreadOnly bool) ([]models.Notification, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where(map[string]interface{}{"read": false})
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err, "Failed to count notifications")
	}
	var out []models.Notification
	if err := q.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&out).Error; err != nil {
		return nil, 0, utils.Internal(err, "Failed to fetch notifications")
	}
	return out, total, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ?", userID).Where(map[string]interface{}{"read": false}).
		Count(&n).Error; err != nil {
		return 0, utils.Internal(err, "Failed to count notifications")
	}
	return n, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"read": true, "read_at": &now})
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to update notification")
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("Notification not found")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ?", userID).Where(map[string]interface{}{"read": false}).
		Updates(map[string]interface{}{"read": true, "read_at": &now})
	if res.Error != nil {
		return 0, utils.Internal(res.Error, "Failed to update notifications")
	}
	return res.RowsAffected, nil
}
