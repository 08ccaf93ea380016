package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

type noopKeys struct{}

func (noopKeys) GetKeys(context.Context, string, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}
func (noopKeys) SetKeys(context.Context, string, map[string][]byte) error { return nil }

func TestConnect_WithIdentityAuthenticatesImmediately(t *testing.T) {
	c := NewClient(nil)
	creds := &model.CredentialRecord{
		SessionID:   "s",
		DeviceID:    "dev@local",
		IdentityKey: []byte{1},
		Registered:  true,
	}

	conn, err := c.Connect(context.Background(), creds, noopKeys{})
	require.NoError(t, err)
	defer conn.Close()

	ev := <-conn.Events()
	auth, ok := ev.(driven.EventAuthenticated)
	require.True(t, ok, "expected authenticated event, got %T", ev)
	assert.Equal(t, "dev@local", auth.Credentials.DeviceID)
}

func TestConnect_FreshSessionPairsThenAuthenticates(t *testing.T) {
	c := NewClient(nil)
	c.PairDelay = 5 * time.Millisecond

	conn, err := c.Connect(context.Background(), &model.CredentialRecord{SessionID: "s"}, noopKeys{})
	require.NoError(t, err)
	defer conn.Close()

	ev := <-conn.Events()
	pairing, ok := ev.(driven.EventPairingCode)
	require.True(t, ok, "expected pairing event, got %T", ev)
	assert.Len(t, pairing.Code, 9) // XXXX-XXXX

	select {
	case ev = <-conn.Events():
	case <-time.After(time.Second):
		t.Fatal("no authenticated event after pairing")
	}
	auth, ok := ev.(driven.EventAuthenticated)
	require.True(t, ok, "expected authenticated event, got %T", ev)
	assert.True(t, auth.Credentials.HasIdentity())
}

func TestClose_StopsPendingConfirmation(t *testing.T) {
	c := NewClient(nil)
	c.PairDelay = 10 * time.Millisecond

	conn, err := c.Connect(context.Background(), &model.CredentialRecord{SessionID: "s"}, noopKeys{})
	require.NoError(t, err)

	<-conn.Events() // pairing code
	require.NoError(t, conn.Close())

	// The channel closes without a second event.
	_, open := <-conn.Events()
	assert.False(t, open)
}

func TestSendText_AfterCloseFails(t *testing.T) {
	c := NewClient(nil)
	creds := &model.CredentialRecord{SessionID: "s", DeviceID: "d", IdentityKey: []byte{1}, Registered: true}

	conn, err := c.Connect(context.Background(), creds, noopKeys{})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Error(t, conn.SendText(context.Background(), "grp", "hi"))
}
