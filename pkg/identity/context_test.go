package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRef(subject string) UserRef {
	return UserRef{UUID: uuid.New(), SubjectID: subject}
}

func TestCurrentEmptyContext(t *testing.T) {
	_, ok := Current(context.Background())
	assert.False(t, ok)
}

func TestPushAndCurrent(t *testing.T) {
	ctx := context.Background()
	alice := NewBasicIdentity(testRef("alice"))

	ctx = Push(ctx, alice)
	got, ok := Current(ctx)
	require.True(t, ok)
	assert.Equal(t, alice, got)
}

func TestPushIsScopedToDerivedContext(t *testing.T) {
	outer := Push(context.Background(), NewBasicIdentity(testRef("alice")))
	inner := Push(outer, NewBasicIdentity(testRef("bob")))

	got, ok := Current(inner)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Ref.SubjectID)

	// The outer context is untouched by the nested push
	got, ok = Current(outer)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Ref.SubjectID)
}

func TestPop(t *testing.T) {
	ctx := Push(context.Background(), NewBasicIdentity(testRef("alice")))
	ctx = Push(ctx, NewBasicIdentity(testRef("bob")))

	ctx = Pop(ctx)
	got, ok := Current(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Ref.SubjectID)

	ctx = Pop(ctx)
	_, ok = Current(ctx)
	assert.False(t, ok)

	// Popping an empty stack is a no-op
	ctx = Pop(ctx)
	_, ok = Current(ctx)
	assert.False(t, ok)
}

func TestElevationInheritedByPush(t *testing.T) {
	ctx := Push(context.Background(), NewBasicIdentity(testRef("alice")))
	assert.False(t, IsElevated(ctx))

	elevated := Elevate(ctx)
	assert.True(t, IsElevated(elevated))

	// A frame pushed under an elevated frame inherits elevation
	nested := Push(elevated, NewBasicIdentity(testRef("bob")))
	assert.True(t, IsElevated(nested))

	// The original context never became elevated
	assert.False(t, IsElevated(ctx))
}

func TestElevatePreservesIdentity(t *testing.T) {
	alice := NewBasicIdentity(testRef("alice"))
	ctx := Elevate(Push(context.Background(), alice))

	got, ok := Current(ctx)
	require.True(t, ok)
	assert.Equal(t, alice, got)
}

func TestChecksSuppressed(t *testing.T) {
	ctx := context.Background()
	assert.False(t, ChecksSuppressed(ctx))

	suppressed := WithChecksSuppressed(ctx)
	assert.True(t, ChecksSuppressed(suppressed))

	restored := WithChecksEnabled(suppressed)
	assert.False(t, ChecksSuppressed(restored))
}

func TestProcessingIdentity(t *testing.T) {
	id := ProcessingIdentity()
	assert.True(t, id.IsProcessing())
	assert.False(t, NewBasicIdentity(testRef("alice")).IsProcessing())
}

func TestStacksAreIndependentAcrossGoroutines(t *testing.T) {
	base := context.Background()
	var wg sync.WaitGroup
	for _, name := range []string{"alice", "bob", "carol"} {
		wg.Add(1)
		go func(subject string) {
			defer wg.Done()
			ctx := Push(base, NewBasicIdentity(testRef(subject)))
			got, ok := Current(ctx)
			assert.True(t, ok)
			assert.Equal(t, subject, got.Ref.SubjectID)
		}(name)
	}
	wg.Wait()

	_, ok := Current(base)
	assert.False(t, ok)
}
