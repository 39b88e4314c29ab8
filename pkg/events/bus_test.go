package events

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permission"
)

type recorder struct {
	mu     sync.Mutex
	events []permission.ChangeEvent
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 16)}
}

func (r *recorder) OnPermissionChange(event permission.ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) all() []permission.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]permission.ChangeEvent(nil), r.events...)
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a := newRecorder()
	b := newRecorder()
	bus.Subscribe(a)
	bus.Subscribe(b)

	event := permission.DocumentClearedEvent(uuid.New())
	bus.OnPermissionChange(event)

	require.Len(t, a.all(), 1)
	require.Len(t, b.all(), 1)
	assert.Equal(t, event, a.all()[0])
}

func TestBusDeliveryIsSynchronous(t *testing.T) {
	bus := NewBus()
	rec := newRecorder()
	bus.Subscribe(rec)

	bus.OnPermissionChange(permission.UserClearedEvent(uuid.New()))
	assert.Len(t, rec.all(), 1, "event visible as soon as publish returns")
}

func TestRelayAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	localA := newRecorder()
	localB := newRecorder()
	relayA := NewRelay(clientA, "", "instance-a", localA, logger)
	relayB := NewRelay(clientB, "", "instance-b", localB, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relayA.Run(ctx) }()
	go func() { _ = relayB.Run(ctx) }()

	// Let both subscriptions settle before publishing
	time.Sleep(50 * time.Millisecond)

	docUUID := uuid.New()
	userUUID := uuid.New()
	relayA.OnPermissionChange(permission.AddedEvent(docUUID, userUUID, permission.DocumentPermissionRead))

	select {
	case <-localB.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("instance b never received the broadcast")
	}

	received := localB.all()
	require.Len(t, received, 1)
	assert.Equal(t, permission.ChangeEventAdded, received[0].Kind)
	require.NotNil(t, received[0].DocumentUUID)
	assert.Equal(t, docUUID, *received[0].DocumentUUID)
	assert.Equal(t, permission.DocumentPermissionRead, received[0].Permission)

	// The publisher must not react to its own broadcast
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, localA.all())
}
