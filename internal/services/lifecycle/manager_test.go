package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ShutdownRunsHooksInReverse(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	m.Register("postgres", func(context.Context) error { order = append(order, "postgres"); return nil })
	m.Closer("buffer", func() error { order = append(order, "buffer"); return errors.New("locked") })
	m.Register("http", func(context.Context) error { order = append(order, "http"); return nil })

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Equal(t, []string{"http", "buffer", "postgres"}, order)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3, "hooks run once")
}

func TestManager_GoCancelsOnFailure(t *testing.T) {
	m := New(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Go(ctx, "server", func(context.Context) error { return errors.New("bind: address in use") }, cancel)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("failure did not cancel the app context")
	}
}
