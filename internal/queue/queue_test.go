package queue

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAuditLine(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("signup", func(t *testing.T) {
		line := FormatAuditLine(AccountEvent{Type: EventUserSignedUp, UserID: 7, RoleID: 2, InvitationID: 3, Email: "a@b.c", OccurredAt: at})
		assert.Equal(t, "[2026-03-01T12:00:00Z] user.signed_up | user_id=7 | role_id=2 | invitation_id=3 | email=\"a@b.c\"\n", line)
	})

	t.Run("omits zero ids", func(t *testing.T) {
		line := FormatAuditLine(AccountEvent{Type: EventUserBootstrapped, UserID: 1, OccurredAt: at})
		assert.Equal(t, "[2026-03-01T12:00:00Z] user.bootstrapped | user_id=1\n", line)
	})
}

func TestAuditConsumerHandle(t *testing.T) {
	dir := t.TempDir()
	c := NewAuditConsumer("", dir, logrus.New())

	t.Run("appends lines", func(t *testing.T) {
		require.NoError(t, c.Handle([]byte(`{"type":"user.created","user_id":4,"occurred_at":"2026-03-01T12:00:00Z"}`)))
		require.NoError(t, c.Handle([]byte(`{"type":"invitation.created","invitation_id":9,"occurred_at":"2026-03-01T12:00:00Z"}`)))

		b, err := os.ReadFile(filepath.Join(dir, "audit.log"))
		require.NoError(t, err)
		assert.Equal(t,
			"[2026-03-01T12:00:00Z] user.created | user_id=4\n[2026-03-01T12:00:00Z] invitation.created | invitation_id=9\n",
			string(b))
	})

	t.Run("rejects malformed", func(t *testing.T) {
		assert.Error(t, c.Handle([]byte(`{not json`)))
		assert.Error(t, c.Handle([]byte(`{"user_id":1}`)))
	})
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	p := NewPublisher("amqp://guest:guest@"+ln.Addr().String()+"/", logrus.New())
	p.DialTimeout = 200 * time.Millisecond

	start := time.Now()
	err = p.Publish(context.Background(), EventsQueue, AccountEvent{Type: EventUserCreated})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPublishDialTimeoutFollowsContext(t *testing.T) {
	p := NewPublisher("amqp://localhost/", logrus.New())
	assert.Equal(t, DefaultDialTimeout, p.dialTimeout(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.LessOrEqual(t, p.dialTimeout(ctx), 100*time.Millisecond)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	assert.Error(t, p.Publish(expired, EventsQueue, AccountEvent{Type: EventUserCreated}))
}
