package activity

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shortstacks/models"
	"shortstacks/storage"
	"shortstacks/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	queueKey       = "logs:queue"
	cacheTTL       = 48 * time.Hour
	MinArchiveDays = 7
	archiveLinkTTL = 15 * time.Minute
)

// ObjectStore receives archive bundles.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Recorder writes the audit trail. Entries go to Redis first and are flushed
// into the database in batches; without Redis they are written directly.
type Recorder struct {
	db    *gorm.DB
	redis *redis.Client
	store ObjectStore
	now   func() time.Time
}

func NewRecorder(db *gorm.DB, rdb *redis.Client, store ObjectStore) *Recorder {
	return &Recorder{db: db, redis: rdb, store: store, now: time.Now}
}

// WithClock replaces the time source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record stores one audit entry.
func (r *Recorder) Record(ctx context.Context, entry models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if r.redis != nil {
		err := r.cache(ctx, entry)
		if err == nil {
			return nil
		}
		logrus.WithError(err).Warn("Failed to cache activity log, saving directly to database")
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("save activity log: %w", err)
	}
	return nil
}

func (r *Recorder) cache(ctx context.Context, entry models.ActivityLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal activity log: %w", err)
	}
	key := fmt.Sprintf("log:%d:%s:%d", entry.UserID, entry.Action, entry.CreatedAt.UnixNano())
	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, key, data, cacheTTL)
	pipe.ZAdd(ctx, queueKey, &redis.Z{Score: float64(entry.CreatedAt.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache activity log: %w", err)
	}
	return nil
}

// Flush moves every queued entry from Redis into the database.
func (r *Recorder) Flush(ctx context.Context) (int, error) {
	if r.redis == nil {
		return 0, nil
	}
	keys, err := r.redis.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read log queue: %w", err)
	}

	flushed, failed := 0, 0
	for _, key := range keys {
		data, err := r.redis.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				r.redis.ZRem(ctx, queueKey, key)
			} else {
				failed++
			}
			continue
		}
		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("Dropping unreadable cached log")
			r.redis.Del(ctx, key)
			r.redis.ZRem(ctx, queueKey, key)
			continue
		}
		entry.ID = 0
		if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
			failed++
			continue
		}
		pipe := r.redis.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, queueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to remove flushed log from cache")
		}
		flushed++
	}

	logrus.WithFields(logrus.Fields{"flushed": flushed, "failed": failed}).Info("Activity log flush finished")
	return flushed, nil
}

// List returns the audit trail newest first.
func (r *Recorder) List(ctx context.Context, userID uint, page, pageSize int) ([]models.ActivityLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.ActivityLog{})
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err, "Failed to count activity logs")
	}
	var logs []models.ActivityLog
	if err := q.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, utils.Internal(err, "Failed to fetch activity logs")
	}
	return logs, total, nil
}

// Archive bundles every log older than daysOld into a zip (JSON + CSV),
// uploads it and removes the archived rows.
func (r *Recorder) Archive(ctx context.Context, daysOld int) (*models.LogArchive, error) {
	if daysOld < MinArchiveDays {
		return nil, fmt.Errorf("minimum archive age is %d days", MinArchiveDays)
	}
	if r.store == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}
	cutoff := r.now().AddDate(0, 0, -daysOld)

	var logs []models.ActivityLog
	var batch []models.ActivityLog
	err := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("id").
		FindInBatches(&batch, 1000, func(tx *gorm.DB, _ int) error {
			logs = append(logs, batch...)
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("fetch logs for archiving: %w", err)
	}
	if len(logs) == 0 {
		logrus.Info("No activity logs to archive")
		return nil, nil
	}

	name := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	body, err := BuildArchive(logs, r.now())
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), name)
	if err := r.store.Put(ctx, key, body, storage.ContentType(name)); err != nil {
		return nil, err
	}

	lastID := logs[len(logs)-1].ID
	archive := models.LogArchive{
		FileName:    name,
		S3Key:       key,
		StartDate:   logs[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(logs),
		FileSize:    int64(len(body)),
		Status:      "completed",
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		return tx.Create(&archive).Error
	})
	if err != nil {
		return nil, fmt.Errorf("finish archive %s: %w", key, err)
	}

	logrus.WithFields(logrus.Fields{"key": key, "records": len(logs)}).Info("Activity logs archived")
	return &archive, nil
}

// BuildArchive renders logs into a zip holding activity_logs.json and activity_logs.csv.
func BuildArchive(logs []models.ActivityLog, exportedAt time.Time) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    exportedAt.UTC(),
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}

	cf, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(cf)
	_ = w.Write([]string{"ID", "User ID", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			string(l.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ListArchives returns archive records newest first.
func (r *Recorder) ListArchives(ctx context.Context) ([]models.LogArchive, error) {
	var archives []models.LogArchive
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch log archives")
	}
	return archives, nil
}

// ArchiveURL returns a short lived download link for an archive.
func (r *Recorder) ArchiveURL(ctx context.Context, id uint) (string, error) {
	if r.store == nil {
		return "", utils.NotFound("Archive storage is not configured")
	}
	var archive models.LogArchive
	if err := r.db.WithContext(ctx).First(&archive, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", utils.NotFound("Archive not found")
		}
		return "", utils.Internal(err, "Failed to load archive")
	}
	url, err := r.store.PresignGet(ctx, archive.S3Key, archiveLinkTTL)
	if err != nil {
		return "", utils.Internal(err, "Failed to sign archive link")
	}
	return url, nil
}
