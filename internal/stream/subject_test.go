package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectDeliversInSubscriptionOrder(t *testing.T) {
	s := NewSubject[int]()
	var got []string

	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })
	s.Subscribe(func(v int) { got = append(got, "c") })

	s.Next(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSubjectUnsubscribeSelfDuringDelivery(t *testing.T) {
	s := NewSubject[int]()
	var got []string
	var selfSub Subscription

	s.Subscribe(func(int) { got = append(got, "first") })
	selfSub = s.Subscribe(func(int) {
		got = append(got, "self")
		selfSub.Unsubscribe()
	})
	s.Subscribe(func(int) { got = append(got, "last") })

	require.NotPanics(t, func() { s.Next(1) })
	assert.Equal(t, []string{"first", "self", "last"}, got, "later observers must not be skipped")

	got = nil
	s.Next(2)
	assert.Equal(t, []string{"first", "last"}, got)
	assert.Equal(t, 2, s.ObserverCount())
}

func TestSubjectUnsubscribeOtherDuringDelivery(t *testing.T) {
	s := NewSubject[int]()
	var got []string
	var victim Subscription

	s.Subscribe(func(int) {
		got = append(got, "killer")
		victim.Unsubscribe()
	})
	victim = s.Subscribe(func(int) { got = append(got, "victim") })
	s.Subscribe(func(int) { got = append(got, "bystander") })

	s.Next(1)
	assert.Equal(t, []string{"killer", "bystander"}, got)
}

func TestSubjectSubscribeDuringDeliveryStartsNextTime(t *testing.T) {
	s := NewSubject[int]()
	var late []int

	s.Subscribe(func(v int) {
		if v == 1 {
			s.Subscribe(func(v int) { late = append(late, v) })
		}
	})

	s.Next(1)
	s.Next(2)
	assert.Equal(t, []int{2}, late)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	s := NewSubject[int]()
	sub := s.Subscribe(func(int) {})
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, s.ObserverCount())
}

func TestBehaviorReplaysLatest(t *testing.T) {
	b := NewBehavior(1)
	b.Next(2)

	var got []int
	sub := b.Subscribe(func(v int) { got = append(got, v) })
	b.Next(3)
	sub.Unsubscribe()
	b.Next(4)

	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 4, b.Value())
}

func TestGroupUnsubscribesAll(t *testing.T) {
	s := NewSubject[int]()
	var g Group
	count := 0
	g.Add(s.Subscribe(func(int) { count++ }))
	g.Add(s.Subscribe(func(int) { count++ }))
	assert.Equal(t, 2, g.Len())

	s.Next(1)
	g.Unsubscribe()
	s.Next(2)
	assert.Equal(t, 2, count)

	// Adding after close disposes immediately.
	g.Add(s.Subscribe(func(int) { count++ }))
	s.Next(3)
	assert.Equal(t, 2, count)
}

func TestSubjectPanicHandlerIsolatesObservers(t *testing.T) {
	var recovered []any
	s := NewSubject[int](WithPanicHandler(func(p any) { recovered = append(recovered, p) }))
	var got []int

	s.Subscribe(func(v int) {
		if v == 1 {
			panic("first")
		}
	})
	s.Subscribe(func(v int) { got = append(got, v) })

	require.NotPanics(t, func() { s.Next(1) })
	s.Next(2)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, []any{"first"}, recovered)
}

func TestSubjectWithoutHandlerPropagatesPanic(t *testing.T) {
	s := NewSubject[int]()
	s.Subscribe(func(int) { panic("boom") })
	assert.PanicsWithValue(t, "boom", func() { s.Next(1) })
}

func TestBehaviorPanicHandlerIsolatesDerivedStreams(t *testing.T) {
	var recovered int
	b := NewBehavior(0, WithPanicHandler(func(any) { recovered++ }))
	var got []int

	Map[int, int](b, func(v int) int {
		if v == 1 {
			panic("projector")
		}
		return v
	}).Subscribe(func(int) {})
	b.Subscribe(func(v int) { got = append(got, v) })

	require.NotPanics(t, func() { b.Next(1) })
	assert.Equal(t, []int{0, 1}, got)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, 1, b.Value())
}
