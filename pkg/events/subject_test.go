package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectDeliversInOrder(t *testing.T) {
	s := NewSubject[int]()

	var got []int
	disp := s.Subscribe(Observer[int]{OnNext: func(v int) { got = append(got, v) }})
	defer disp.Dispose()

	s.Next(1)
	s.Next(2)
	s.Next(3)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestSubjectNoReplayByDefault(t *testing.T) {
	s := NewSubject[int]()
	s.Next(42)

	var got []int
	disp := s.Subscribe(Observer[int]{OnNext: func(v int) { got = append(got, v) }})
	defer disp.Dispose()

	assert.Empty(t, got)
}

func TestReplaySubjectReplaysLatest(t *testing.T) {
	s := NewReplaySubject[string]()
	s.Next("old")
	s.Next("latest")

	var got []string
	disp := s.Subscribe(Observer[string]{OnNext: func(v string) { got = append(got, v) }})
	defer disp.Dispose()

	assert.Equal(t, []string{"latest"}, got)
}

func TestSubjectDispose(t *testing.T) {
	s := NewSubject[int]()

	var got []int
	disp := s.Subscribe(Observer[int]{OnNext: func(v int) { got = append(got, v) }})

	s.Next(1)
	disp.Dispose()
	s.Next(2)

	assert.Equal(t, []int{1, 2}[:1], got)
	assert.True(t, disp.IsDisposed())
}

func TestSubjectErrorIsTerminal(t *testing.T) {
	s := NewSubject[int]()
	boom := errors.New("boom")

	var gotErr error
	var got []int
	s.Subscribe(Observer[int]{
		OnNext:  func(v int) { got = append(got, v) },
		OnError: func(err error) { gotErr = err },
	})

	s.Next(1)
	s.Error(boom)
	s.Next(2)

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, boom, gotErr)
	assert.True(t, s.IsTerminated())
}

func TestSubjectLateSubscriberGetsError(t *testing.T) {
	s := NewSubject[int]()
	boom := errors.New("boom")
	s.Error(boom)

	var gotErr error
	s.Subscribe(Observer[int]{OnError: func(err error) { gotErr = err }})
	assert.Equal(t, boom, gotErr)
}

func TestSubjectValue(t *testing.T) {
	s := NewReplaySubject[int]()

	_, ok := s.Value()
	assert.False(t, ok)

	s.Next(7)
	v, ok := s.Value()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestBagDisposesAll(t *testing.T) {
	var bag Bag
	released := 0
	bag.Add(NewDisposable(func() { released++ }))
	bag.Add(NewDisposable(func() { released++ }))

	bag.Dispose()
	assert.Equal(t, 2, released)
	assert.True(t, bag.IsDisposed())
}

func TestBagLateAddDisposedImmediately(t *testing.T) {
	var bag Bag
	bag.Dispose()

	released := false
	bag.Add(NewDisposable(func() { released = true }))
	assert.True(t, released, "поздняя подписка закрытого бэга освобождается сразу")
}

func TestDisposableIdempotent(t *testing.T) {
	count := 0
	d := NewDisposable(func() { count++ })

	d.Dispose()
	d.Dispose()
	assert.Equal(t, 1, count)
}
