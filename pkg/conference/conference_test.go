package conference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/events"
)

func onNext[T any](fn func(T)) events.Observer[T] {
	return events.Observer[T]{OnNext: fn}
}

func newLeg(t *testing.T, id string, contact call.URI, status call.Status) *call.Call {
	t.Helper()
	leg := call.New(id, "acc-1", contact, "", call.DirectionOutgoing, false)
	if status != call.StatusInactive {
		require.NoError(t, leg.SetStatus(call.StatusRinging))
		if status != call.StatusRinging {
			require.NoError(t, leg.SetStatus(status))
		}
	}
	return leg
}

func TestSimpleCall(t *testing.T) {
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	conf := New("call-1", leg)

	assert.True(t, conf.IsSimpleCall())
	assert.False(t, conf.IsConference())
	assert.Equal(t, "call-1_plugin", conf.PluginID())
	assert.Same(t, leg, conf.Call())
	assert.Same(t, leg, conf.FirstCall())

	// Состояние простого вызова — состояние его единственной ноги
	assert.Equal(t, call.StatusCurrent, conf.State())
	assert.True(t, conf.IsOnGoing())
}

func TestConferenceOfTwo(t *testing.T) {
	legA := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	legB := newLeg(t, "call-2", "bob@example.com", call.StatusCurrent)

	conf := New("conf-1", legA)
	conf.AddParticipant(legB)

	assert.False(t, conf.IsSimpleCall())
	assert.True(t, conf.IsConference())
	assert.Equal(t, 2, conf.ParticipantCount())
	assert.Nil(t, conf.Call(), "Call определен только для простого вызова")

	conf.SetConfState(call.StatusCurrent)
	assert.Equal(t, call.StatusCurrent, conf.State())
	assert.True(t, conf.IsOnGoing())
}

func TestSingleLegWithForeignIDIsConference(t *testing.T) {
	// Нога с чужим ID: конференция, из которой вышли остальные
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	conf := New("conf-1", leg)

	assert.False(t, conf.IsSimpleCall())
	assert.True(t, conf.IsConference())
}

func TestFindParticipants(t *testing.T) {
	legA := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	legB := newLeg(t, "call-2", "bob@example.com", call.StatusCurrent)
	conf := New("conf-1", legA)
	conf.AddParticipant(legB)

	assert.Same(t, legB, conf.FindCallByID("call-2"))
	assert.Nil(t, conf.FindCallByID("call-9"))
	assert.Same(t, legA, conf.FindCallByContact("alice@example.com"))
	assert.True(t, conf.Contains("call-1"))
	assert.False(t, conf.Contains("call-9"))
}

func TestRemoveParticipant(t *testing.T) {
	legA := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	legB := newLeg(t, "call-2", "bob@example.com", call.StatusCurrent)
	conf := New("conf-1", legA)
	conf.AddParticipant(legB)

	assert.True(t, conf.RemoveParticipant(legB))
	assert.False(t, conf.RemoveParticipant(legB))
	assert.Equal(t, 1, conf.ParticipantCount())
}

func TestConferenceStateOnHold(t *testing.T) {
	legA := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	legB := newLeg(t, "call-2", "bob@example.com", call.StatusCurrent)
	conf := New("conf-1", legA)
	conf.AddParticipant(legB)

	conf.SetConfState(call.StatusFromConferenceString("ACTIVE_DETACHED"))
	assert.Equal(t, call.StatusHold, conf.State())
}

func TestMaximizedParticipant(t *testing.T) {
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	conf := New("conf-1", leg)

	_, ok := conf.MaximizedParticipant()
	assert.False(t, ok)

	conf.SetMaximizedParticipant("alice@example.com")
	uri, ok := conf.MaximizedParticipant()
	require.True(t, ok)
	assert.Equal(t, call.URI("alice@example.com"), uri)

	conf.ClearMaximizedParticipant()
	_, ok = conf.MaximizedParticipant()
	assert.False(t, ok)
}

func TestPendingLifecycle(t *testing.T) {
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	conf := New("conf-1", leg)

	var snapshots [][]ParticipantInfo
	disp := conf.PendingCalls().Subscribe(onNext(func(infos []ParticipantInfo) {
		snapshots = append(snapshots, infos)
	}))
	defer disp.Dispose()

	// Поток с повтором сразу отдает текущее пустое состояние.
	require.Len(t, snapshots, 1)
	assert.Empty(t, snapshots[0])

	pendingLeg := newLeg(t, "call-2", "bob@example.com", call.StatusRinging)
	info := NewPendingInfo(pendingLeg, Contact{URI: "bob@example.com"})
	assert.True(t, info.Pending)

	conf.AddPending(info)
	require.Len(t, snapshots, 2)
	require.Len(t, snapshots[1], 1)
	assert.Equal(t, call.URI("bob@example.com"), snapshots[1][0].Contact.URI)

	conf.RemovePending(info)
	require.Len(t, snapshots, 3)
	assert.Empty(t, snapshots[2])
}

func TestParticipantInfoFromMap(t *testing.T) {
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	info := NewParticipantInfo(leg, Contact{URI: "alice@example.com"}, map[string]string{
		"uri":        "alice@example.com",
		"sinkId":     "sink-1",
		"x":          "10",
		"y":          "20",
		"w":          "640",
		"h":          "480",
		"active":     "true",
		"handRaised": "true",
	})

	assert.Equal(t, "sink-1", info.SinkID)
	assert.Equal(t, 10, info.X)
	assert.Equal(t, 480, info.H)
	assert.True(t, info.Active)
	assert.True(t, info.HandRaised)
	assert.False(t, info.IsEmpty())
}

func TestSetInfoFiltersEmpty(t *testing.T) {
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	conf := New("conf-1", leg)

	conf.SetInfo([]ParticipantInfo{
		{Contact: Contact{URI: "alice@example.com"}, SinkID: "sink-1"},
		{},
	})

	var last []ParticipantInfo
	disp := conf.ParticipantInfo().Subscribe(onNext(func(infos []ParticipantInfo) {
		last = infos
	}))
	defer disp.Dispose()

	require.Len(t, last, 1)
	assert.Equal(t, call.URI("alice@example.com"), last[0].Contact.URI)
}

func TestParticipantRecording(t *testing.T) {
	leg := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	conf := New("conf-1", leg)

	var last []Contact
	disp := conf.ParticipantRecording().Subscribe(onNext(func(contacts []Contact) {
		last = contacts
	}))
	defer disp.Dispose()

	conf.SetParticipantRecording(Contact{URI: "alice@example.com"}, true)
	require.Len(t, last, 1)

	// Повторная отметка записи не дублирует контакт
	conf.SetParticipantRecording(Contact{URI: "alice@example.com"}, true)
	require.Len(t, last, 1)

	conf.SetParticipantRecording(Contact{URI: "alice@example.com"}, false)
	assert.Empty(t, last)
}

func TestTimestampStart(t *testing.T) {
	legA := newLeg(t, "call-1", "alice@example.com", call.StatusCurrent)
	legB := newLeg(t, "call-2", "bob@example.com", call.StatusCurrent)
	conf := New("conf-1", legA)
	conf.AddParticipant(legB)

	start, ok := conf.TimestampStart()
	require.True(t, ok)
	assert.False(t, start.After(legA.Timestamp()))
}
