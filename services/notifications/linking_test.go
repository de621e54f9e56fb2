package notifications

import (
	"context"
	"strings"
	"testing"
	"time"

	"shortstacks/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLineUsers struct {
	ids map[uint]string
}

func (m *memLineUsers) SetLineUserID(_ context.Context, userID uint, lineUserID string) error {
	if m.ids == nil {
		m.ids = map[uint]string{}
	}
	m.ids[userID] = lineUserID
	return nil
}

func TestLineLinker_IssueAndRedeem(t *testing.T) {
	users := &memLineUsers{}
	l := NewLineLinker(nil, users)
	ctx := context.Background()

	code, expires, err := l.IssueCode(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, code, lineCodeLength)
	assert.WithinDuration(t, time.Now().Add(LineLinkTTL), expires, time.Minute)

	userID, err := l.Redeem(ctx, " "+strings.ToLower(code)+" ", "U123")
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)
	assert.Equal(t, "U123", users.ids[7])

	_, err = l.Redeem(ctx, code, "U999")
	assert.True(t, utils.IsKind(err, utils.KindNotFound), "codes are single use")
	assert.Equal(t, "U123", users.ids[7])
}

func TestLineLinker_RejectsExpiredAndUnknownCodes(t *testing.T) {
	users := &memLineUsers{}
	l := NewLineLinker(nil, users)
	ctx := context.Background()

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return start }
	code, _, err := l.IssueCode(ctx, 3)
	require.NoError(t, err)

	l.now = func() time.Time { return start.Add(LineLinkTTL + time.Second) }
	_, err = l.Redeem(ctx, code, "U1")
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	_, err = l.Redeem(ctx, "NOPE1234", "U1")
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	assert.Empty(t, users.ids)
}
