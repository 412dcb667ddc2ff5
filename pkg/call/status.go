package call

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Status — состояние одного сигнального плеча вызова.
//
// Машина состояний:
//
//	Inactive → Ringing → Current ⇄ Hold → {Finished, Failure, Busy}
//
// Терминальные состояния (Finished, Failure, Busy) переходов не имеют,
// автоматических повторов нет.
type Status int

const (
	StatusInactive Status = iota
	StatusRinging
	StatusCurrent
	StatusHold
	StatusFinished
	StatusFailure
	StatusBusy
)

var statusNames = map[Status]string{
	StatusInactive: "INACTIVE",
	StatusRinging:  "RINGING",
	StatusCurrent:  "CURRENT",
	StatusHold:     "HOLD",
	StatusFinished: "FINISHED",
	StatusFailure:  "FAILURE",
	StatusBusy:     "BUSY",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsRinging возвращает true только для Ringing.
func (s Status) IsRinging() bool {
	return s == StatusRinging
}

// IsOnGoing возвращает true для активного вызова: Current или Hold.
func (s Status) IsOnGoing() bool {
	return s == StatusCurrent || s == StatusHold
}

// IsOver возвращает true для терминальных состояний.
func (s Status) IsOver() bool {
	return s == StatusFinished || s == StatusFailure || s == StatusBusy
}

// StatusFromDaemonString сворачивает словарь статусов демона в машину
// состояний плеча. SEARCHING и CONNECTING — ранние фазы установления,
// оркестратор их отдельно не различает.
func StatusFromDaemonString(state string) Status {
	switch state {
	case "SEARCHING", "CONNECTING", "INCOMING", "RINGING":
		return StatusRinging
	case "CURRENT", "UNHOLD":
		return StatusCurrent
	case "HOLD":
		return StatusHold
	case "HUNGUP", "OVER":
		return StatusFinished
	case "BUSY":
		return StatusBusy
	case "FAILURE":
		return StatusFailure
	default:
		return StatusInactive
	}
}

// StatusFromConferenceString сворачивает статус конференции демона.
// Держится отдельно от StatusFromDaemonString: конференция и одиночный
// вызов отчитываются по разным каналам демона.
func StatusFromConferenceString(state string) Status {
	switch state {
	case "ACTIVE_ATTACHED", "ACTIVE_ATTACHED_REC":
		return StatusCurrent
	case "ACTIVE_DETACHED", "ACTIVE_DETACHED_REC", "HOLD", "HOLD_REC":
		return StatusHold
	default:
		return StatusInactive
	}
}

// statusEvent формирует имя события перехода для fsm.
func statusEvent(dst Status) string {
	return "to_" + dst.String()
}

// newStatusFSM создает машину состояний плеча на looplab/fsm.
// События именуются по целевому состоянию.
func newStatusFSM() *fsm.FSM {
	return fsm.NewFSM(
		StatusInactive.String(),
		fsm.Events{
			{Name: statusEvent(StatusRinging), Src: []string{StatusInactive.String()}, Dst: StatusRinging.String()},
			{Name: statusEvent(StatusCurrent), Src: []string{StatusInactive.String(), StatusRinging.String(), StatusHold.String()}, Dst: StatusCurrent.String()},
			{Name: statusEvent(StatusHold), Src: []string{StatusCurrent.String()}, Dst: StatusHold.String()},
			{Name: statusEvent(StatusFinished), Src: []string{StatusInactive.String(), StatusRinging.String(), StatusCurrent.String(), StatusHold.String()}, Dst: StatusFinished.String()},
			{Name: statusEvent(StatusFailure), Src: []string{StatusInactive.String(), StatusRinging.String(), StatusCurrent.String(), StatusHold.String()}, Dst: StatusFailure.String()},
			{Name: statusEvent(StatusBusy), Src: []string{StatusInactive.String(), StatusRinging.String()}, Dst: StatusBusy.String()},
		},
		nil,
	)
}

// ErrInvalidTransition возвращается при запрещенном переходе статуса.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("невалидный переход статуса вызова: %s -> %s", e.From, e.To)
}

// transition выполняет переход через fsm, транслируя ошибку looplab
// в типизированную ошибку пакета.
func transition(m *fsm.FSM, from, to Status) error {
	if from == to {
		return nil
	}
	if err := m.Event(context.Background(), statusEvent(to)); err != nil {
		return &ErrInvalidTransition{From: from, To: to}
	}
	return nil
}
