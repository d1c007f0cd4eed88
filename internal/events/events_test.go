package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightops/internal/logbook"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func sampleEvent() logbook.Event {
	return logbook.Event{
		Type:         logbook.EventEntryAppended,
		LogbookID:    "lb-1",
		EntryID:      "e-1",
		Registration: "XA-CHR",
		Month:        3,
		Year:         2026,
		Delta:        decimal.RequireFromString("2.47"),
		CurrentHours: decimal.RequireFromString("3282.97"),
		At:           time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestNATSPublisherPublish(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "", nil)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "flightops.logbook.entry_appended", conn.subjects[0])

	var got logbook.Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "XA-CHR", got.Registration)
	assert.True(t, got.CurrentHours.Equal(decimal.RequireFromString("3282.97")))

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisherErrors(t *testing.T) {
	p := NewNATSPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "ops", nil)
	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry_appended")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewNATSPublisher(&fakeConn{}, "", nil).Publish(ctx, sampleEvent()), context.Canceled)
}

type countingPublisher struct {
	n   int
	err error
}

func (c *countingPublisher) Publish(context.Context, logbook.Event) error {
	c.n++
	return c.err
}

func TestMultiAttemptsEveryPublisher(t *testing.T) {
	first := &countingPublisher{err: errors.New("first down")}
	second := &countingPublisher{}
	third := &countingPublisher{err: errors.New("third down")}

	err := Multi{first, nil, second, third}.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first down")
	assert.Contains(t, err.Error(), "third down")
	assert.Equal(t, 1, first.n)
	assert.Equal(t, 1, second.n)
	assert.Equal(t, 1, third.n)

	assert.NoError(t, Multi{second}.Publish(context.Background(), sampleEvent()))
}

func TestNATSPublisherLive(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	p, err := ConnectNATS(url, "flightops.test", nil)
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer p.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("flightops.test.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	select {
	case m := <-msgs:
		assert.Equal(t, "flightops.test.entry_appended", m.Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}
