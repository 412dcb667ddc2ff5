package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
)

// startOngoing поднимает у презентера активный простой вызов и возвращает
// его конференцию.
func startOngoing(env *testEnv, id string) *conference.Conference {
	env.presenter.InitIncoming(id, true)
	env.sync()

	leg := newOngoingLeg(id, call.DirectionIncoming, false)
	conf := conference.New(id, leg)
	env.calls.confSubject(id).Next(conf)
	env.sync()
	return conf
}

func TestAddParticipantWithoutConferenceIsRejected(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	env.presenter.AddConferenceParticipant("acc-1", "late@example.com")
	env.sync()

	assert.Empty(t, env.conversations.started)
	assert.Empty(t, env.calls.placed)
}

func TestPendingParticipantLifecycle(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	conf := startOngoing(env, "host-1")

	env.presenter.AddConferenceParticipant("acc-1", "late@example.com")
	env.sync()

	require.Len(t, env.calls.placed, 1)
	assert.False(t, env.calls.placed[0].withVideo, "отложенная нога размещается без видео")
	pendingLeg := env.calls.placedLegs[0]
	legSubject := env.calls.callSubject(pendingLeg.DaemonID())

	// Первое событие неоконченной ноги регистрирует отложенного участника.
	require.NoError(t, pendingLeg.SetStatus(call.StatusRinging))
	legSubject.Next(pendingLeg)
	env.sync()

	pending := conf.PendingSnapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, call.URI("late@example.com"), pending[0].Contact.URI)
	assert.True(t, pending[0].Pending)

	// Ответ запускает льготный период, после которого нога вливается.
	require.NoError(t, pendingLeg.SetStatus(call.StatusCurrent))
	legSubject.Next(pendingLeg)

	assert.Eventually(t, func() bool {
		env.calls.mu.Lock()
		defer env.calls.mu.Unlock()
		return len(env.calls.merges) == 1
	}, time.Second, 5*time.Millisecond)

	env.calls.mu.Lock()
	merge := env.calls.merges[0]
	env.calls.mu.Unlock()
	assert.Equal(t, "join", merge.kind, "две простые ноги сливаются через JoinParticipant")
	assert.Equal(t, "host-1", merge.a)
	assert.Equal(t, pendingLeg.DaemonID(), merge.b)

	env.sync()
	assert.Empty(t, conf.PendingSnapshot(), "после слияния отложенный участник снят")
}

func TestPendingParticipantRemovedWhenLegFails(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	conf := startOngoing(env, "host-2")

	env.presenter.AddConferenceParticipant("acc-1", "busy@example.com")
	env.sync()

	require.Len(t, env.calls.placedLegs, 1)
	pendingLeg := env.calls.placedLegs[0]
	legSubject := env.calls.callSubject(pendingLeg.DaemonID())

	require.NoError(t, pendingLeg.SetStatus(call.StatusRinging))
	legSubject.Next(pendingLeg)
	env.sync()
	require.Len(t, conf.PendingSnapshot(), 1)

	require.NoError(t, pendingLeg.SetStatus(call.StatusBusy))
	legSubject.Next(pendingLeg)
	env.sync()

	assert.Empty(t, conf.PendingSnapshot())
	env.calls.mu.Lock()
	merges := len(env.calls.merges)
	env.calls.mu.Unlock()
	assert.Zero(t, merges, "неотвеченная нога не вливается")
}

func TestMergeExistingSimpleWithSimple(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	startOngoing(env, "host-3")

	targetLeg := newOngoingLeg("target-leg", call.DirectionOutgoing, false)
	env.conversations.current["other@example.com"] = conference.New("target-leg", targetLeg)

	env.presenter.AddConferenceParticipant("acc-1", "other@example.com")
	env.sync()

	assert.Empty(t, env.calls.placed, "существующий разговор не требует нового вызова")
	env.calls.mu.Lock()
	merges := append([]mergeOp(nil), env.calls.merges...)
	env.calls.mu.Unlock()
	require.Len(t, merges, 1)
	assert.Equal(t, mergeOp{"join", "host-3", "target-leg"}, merges[0])
}

func TestMergeExistingIntoOurConference(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	env.presenter.InitIncoming("conf-host", true)
	env.sync()

	legA := newOngoingLeg("leg-a", call.DirectionIncoming, false)
	legB := newOngoingLeg("leg-b", call.DirectionOutgoing, false)
	conf := conference.New("conf-host", legA)
	conf.AddParticipant(legB)
	conf.SetConfState(call.StatusCurrent)
	env.calls.confSubject("conf-host").Next(conf)
	env.sync()

	targetLeg := newOngoingLeg("target-leg", call.DirectionOutgoing, false)
	env.conversations.current["other@example.com"] = conference.New("target-leg", targetLeg)

	env.presenter.AddConferenceParticipant("acc-1", "other@example.com")
	env.sync()

	env.calls.mu.Lock()
	merges := append([]mergeOp(nil), env.calls.merges...)
	env.calls.mu.Unlock()
	require.Len(t, merges, 1)
	assert.Equal(t, mergeOp{"add", "target-leg", "conf-host"}, merges[0])
}

func TestMergeOurCallIntoExistingConference(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	startOngoing(env, "host-4")

	targetA := newOngoingLeg("t-leg-a", call.DirectionOutgoing, false)
	targetB := newOngoingLeg("t-leg-b", call.DirectionOutgoing, false)
	target := conference.New("target-conf", targetA)
	target.AddParticipant(targetB)
	target.SetConfState(call.StatusCurrent)
	env.conversations.current["group@example.com"] = target

	env.presenter.AddConferenceParticipant("acc-1", "group@example.com")
	env.sync()

	env.calls.mu.Lock()
	merges := append([]mergeOp(nil), env.calls.merges...)
	env.calls.mu.Unlock()
	require.Len(t, merges, 1)
	assert.Equal(t, mergeOp{"add", "host-4", "target-conf"}, merges[0])
}

func TestMergeTwoConferences(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	env.presenter.InitIncoming("conf-a", true)
	env.sync()

	legA := newOngoingLeg("a1", call.DirectionIncoming, false)
	legB := newOngoingLeg("a2", call.DirectionOutgoing, false)
	conf := conference.New("conf-a", legA)
	conf.AddParticipant(legB)
	conf.SetConfState(call.StatusCurrent)
	env.calls.confSubject("conf-a").Next(conf)
	env.sync()

	targetA := newOngoingLeg("b1", call.DirectionOutgoing, false)
	targetB := newOngoingLeg("b2", call.DirectionOutgoing, false)
	target := conference.New("conf-b", targetA)
	target.AddParticipant(targetB)
	target.SetConfState(call.StatusCurrent)
	env.conversations.current["group@example.com"] = target

	env.presenter.AddConferenceParticipant("acc-1", "group@example.com")
	env.sync()

	env.calls.mu.Lock()
	merges := append([]mergeOp(nil), env.calls.merges...)
	env.calls.mu.Unlock()
	require.Len(t, merges, 1)
	assert.Equal(t, mergeOp{"join_conf", "conf-b", "conf-a"}, merges[0])
}

func TestPendingJoinTargetsConferenceAtMergeTime(t *testing.T) {
	env := newTestEnv()
	defer env.presenter.Close()

	startOngoing(env, "host-5")

	env.presenter.AddConferenceParticipant("acc-1", "late@example.com")
	env.sync()

	require.Len(t, env.calls.placedLegs, 1)
	pendingLeg := env.calls.placedLegs[0]
	legSubject := env.calls.callSubject(pendingLeg.DaemonID())

	require.NoError(t, pendingLeg.SetStatus(call.StatusRinging))
	require.NoError(t, pendingLeg.SetStatus(call.StatusCurrent))
	legSubject.Next(pendingLeg)

	// За льготный период простой вызов стал конференцией.
	mergedA := newOngoingLeg("m1", call.DirectionIncoming, false)
	mergedB := newOngoingLeg("m2", call.DirectionOutgoing, false)
	merged := conference.New("merged-conf", mergedA)
	merged.AddParticipant(mergedB)
	merged.SetConfState(call.StatusCurrent)
	env.calls.confSubject("host-5").Next(merged)

	assert.Eventually(t, func() bool {
		env.calls.mu.Lock()
		defer env.calls.mu.Unlock()
		return len(env.calls.merges) == 1
	}, time.Second, 5*time.Millisecond)

	env.calls.mu.Lock()
	merge := env.calls.merges[0]
	env.calls.mu.Unlock()
	assert.Equal(t, mergeOp{"add", pendingLeg.DaemonID(), "merged-conf"}, merge,
		"нога вливается в конференцию, актуальную на момент слияния")
}
