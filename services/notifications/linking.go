package notifications

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"shortstacks/utils"

	"github.com/go-redis/redis/v8"
)

const (
	lineLinkPrefix = "line:link:"
	LineLinkTTL    = 10 * time.Minute
	lineCodeLength = 8
)

// LineUserStore saves the LINE id of a user.
type LineUserStore interface {
	SetLineUserID(ctx context.Context, userID uint, lineUserID string) error
}

// LineLinker pairs app users with LINE accounts. A signed-in user asks for a
// one-time code and sends "LINK <code>" to the bot; the webhook redeems it.
type LineLinker struct {
	redis *redis.Client
	users LineUserStore
	now   func() time.Time

	mu    sync.Mutex
	codes map[string]pendingLink
}

type pendingLink struct {
	userID  uint
	expires time.Time
}

func NewLineLinker(rdb *redis.Client, users LineUserStore) *LineLinker {
	return &LineLinker{redis: rdb, users: users, now: time.Now, codes: map[string]pendingLink{}}
}

// IssueCode creates a link code for userID.
func (l *LineLinker) IssueCode(ctx context.Context, userID uint) (string, time.Time, error) {
	code, err := utils.GenerateJoinCode(lineCodeLength)
	if err != nil {
		return "", time.Time{}, utils.Internal(err, "Failed to generate link code")
	}
	expires := l.now().Add(LineLinkTTL)
	if l.redis != nil {
		if err := l.redis.Set(ctx, lineLinkPrefix+code, userID, LineLinkTTL).Err(); err != nil {
			return "", time.Time{}, utils.Internal(err, "Failed to store link code")
		}
		return code, expires, nil
	}
	l.mu.Lock()
	l.codes[code] = pendingLink{userID: userID, expires: expires}
	l.mu.Unlock()
	return code, expires, nil
}

// Redeem consumes code and stores lineUserID on the user it was issued to.
func (l *LineLinker) Redeem(ctx context.Context, code, lineUserID string) (uint, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	userID, err := l.take(ctx, code)
	if err != nil {
		return 0, err
	}
	if err := l.users.SetLineUserID(ctx, userID, lineUserID); err != nil {
		return 0, err
	}
	return userID, nil
}

func (l *LineLinker) take(ctx context.Context, code string) (uint, error) {
	if l.redis != nil {
		raw, err := l.redis.GetDel(ctx, lineLinkPrefix+code).Result()
		if errors.Is(err, redis.Nil) {
			return 0, utils.NotFound("Link code is invalid or expired")
		}
		if err != nil {
			return 0, utils.Internal(err, "Failed to read link code")
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, utils.Internal(err, "Corrupt link code")
		}
		return uint(id), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.codes[code]
	delete(l.codes, code)
	if !ok || l.now().After(p.expires) {
		return 0, utils.NotFound("Link code is invalid or expired")
	}
	return p.userID, nil
}
