// Package conference агрегирует одно или несколько плеч вызова под одним
// идентификатором. «Простой вызов» — конференция из единственного плеча,
// чей id совпадает с id конференции; настоящая конференция отчитывается
// о статусе собственным каналом демона, поэтому производное состояние
// нормализует оба случая в один набор предикатов.
package conference

import (
	"sync"
	"time"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/events"
)

// Conference — объединение плеч под одним идентификатором. Плечо
// принадлежит не более чем одной конференции одновременно; порядок
// участников — порядок присоединения.
type Conference struct {
	mu sync.RWMutex

	id       string
	pluginID string

	participants []*call.Call

	// Статус уровня конференции (для настоящей конференции).
	confStatus call.Status

	maximizedParticipant call.URI
	hasMaximized         bool
	isModerator          bool
	isAudioMuted         bool
	isVideoMuted         bool

	// Реактивные под-состояния: replay-latest, чтобы поздний подписчик
	// сразу получил актуальный снимок.
	participantInfo      *events.Subject[[]ParticipantInfo]
	pendingCalls         *events.Subject[[]ParticipantInfo]
	participantRecording *events.Subject[[]Contact]

	pending   []ParticipantInfo
	recording []Contact
}

// New создает конференцию с первым плечом. Для простого вызова id
// конференции равен id плеча.
func New(id string, first *call.Call) *Conference {
	conf := &Conference{
		id:                   id,
		pluginID:             id + "_plugin",
		confStatus:           call.StatusInactive,
		participantInfo:      events.NewReplaySubject[[]ParticipantInfo](),
		pendingCalls:         events.NewReplaySubject[[]ParticipantInfo](),
		participantRecording: events.NewReplaySubject[[]Contact](),
	}
	if first != nil {
		conf.participants = append(conf.participants, first)
		first.SetConfID(id)
	}
	conf.pendingCalls.Next(nil)
	conf.participantRecording.Next(nil)
	return conf
}

// ID — идентификатор конференции демона.
func (c *Conference) ID() string { return c.id }

// PluginID — логический идентификатор поверхности плагин-видео.
func (c *Conference) PluginID() string { return c.pluginID }

func (c *Conference) AccountID() string {
	first := c.FirstCall()
	if first == nil {
		return ""
	}
	return first.AccountID()
}

// AddParticipant добавляет плечо в конец списка участников. Вызывающий
// обязан сначала извлечь плечо из прежней конференции.
func (c *Conference) AddParticipant(leg *call.Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.participants {
		if p == leg {
			return
		}
	}
	c.participants = append(c.participants, leg)
	leg.SetConfID(c.id)
}

// RemoveParticipant извлекает плечо из конференции.
func (c *Conference) RemoveParticipant(leg *call.Call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.participants {
		if p == leg {
			c.participants = append(c.participants[:i], c.participants[i+1:]...)
			leg.SetConfID("")
			return true
		}
	}
	return false
}

// Participants возвращает копию списка участников в порядке присоединения.
func (c *Conference) Participants() []*call.Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*call.Call, len(c.participants))
	copy(out, c.participants)
	return out
}

func (c *Conference) ParticipantCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.participants)
}

// FirstCall — первое плечо конференции (nil, если участников нет).
func (c *Conference) FirstCall() *call.Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.participants) == 0 {
		return nil
	}
	return c.participants[0]
}

// Call возвращает единственное плечо простого вызова, иначе nil.
func (c *Conference) Call() *call.Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isSimpleCallLocked() {
		return c.participants[0]
	}
	return nil
}

func (c *Conference) FindCallByID(daemonID string) *call.Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.participants {
		if p.DaemonID() == daemonID {
			return p
		}
	}
	return nil
}

func (c *Conference) FindCallByContact(uri call.URI) *call.Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.participants {
		if p.ContactURI() == uri {
			return p
		}
	}
	return nil
}

func (c *Conference) Contains(daemonID string) bool {
	return c.FindCallByID(daemonID) != nil
}

func (c *Conference) isSimpleCallLocked() bool {
	return len(c.participants) == 1 && c.participants[0].DaemonID() == c.id
}

// IsSimpleCall — единственное плечо, id которого равен id конференции.
func (c *Conference) IsSimpleCall() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isSimpleCallLocked()
}

// IsConference — настоящая (слитая) конференция.
func (c *Conference) IsConference() bool {
	return !c.IsSimpleCall()
}

// SetConfState устанавливает статус уровня конференции (канал демона
// для слитых конференций).
func (c *Conference) SetConfState(s call.Status) {
	c.mu.Lock()
	c.confStatus = s
	c.mu.Unlock()
}

// State — производное состояние: статус единственного плеча для
// простого вызова, иначе собственный статус конференции.
func (c *Conference) State() call.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isSimpleCallLocked() {
		return c.participants[0].Status()
	}
	return c.confStatus
}

// IsOnGoing — активный простой вызов либо любая конференция из более
// чем одного участника. Двойное определение намеренное: двухсторонний
// вызов и слитая конференция отчитываются разными каналами демона.
func (c *Conference) IsOnGoing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isSimpleCallLocked() {
		return c.participants[0].IsOnGoing()
	}
	return len(c.participants) > 1
}

func (c *Conference) IsRinging() bool {
	return c.State().IsRinging()
}

func (c *Conference) IsIncoming() bool {
	leg := c.Call()
	return leg != nil && leg.IsIncoming()
}

// HasVideo — хотя бы одно плечо с включенной видео-позицией.
func (c *Conference) HasVideo() bool {
	for _, p := range c.Participants() {
		if p.HasMedia(call.MediaTypeVideo) {
			return true
		}
	}
	return false
}

// HasActiveVideo — хотя бы одно плечо с активным (не замьюченным) видео.
func (c *Conference) HasActiveVideo() bool {
	for _, p := range c.Participants() {
		if p.HasActiveMedia(call.MediaTypeVideo) {
			return true
		}
	}
	return false
}

func (c *Conference) HasActiveScreenSharing() bool {
	for _, p := range c.Participants() {
		if p.HasActiveScreenSharing() {
			return true
		}
	}
	return false
}

// IsAudioMuted — для простого вызова мьют плеча, иначе флаг конференции.
func (c *Conference) IsAudioMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isSimpleCallLocked() {
		return c.participants[0].IsAudioMuted()
	}
	return c.isAudioMuted
}

func (c *Conference) SetAudioMuted(muted bool) {
	c.mu.Lock()
	c.isAudioMuted = muted
	c.mu.Unlock()
}

func (c *Conference) IsVideoMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isSimpleCallLocked() {
		return c.participants[0].IsVideoMuted()
	}
	return c.isVideoMuted
}

// TimestampStart — минимум из времен начала плеч.
func (c *Conference) TimestampStart() (time.Time, bool) {
	var start time.Time
	for _, p := range c.Participants() {
		ts := p.Timestamp()
		if start.IsZero() || ts.Before(start) {
			start = ts
		}
	}
	return start, !start.IsZero()
}

// MaximizedParticipant — текущий фокус раскладки (пусто — сетка).
func (c *Conference) MaximizedParticipant() (call.URI, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maximizedParticipant, c.hasMaximized
}

func (c *Conference) SetMaximizedParticipant(uri call.URI) {
	c.mu.Lock()
	c.maximizedParticipant = uri
	c.hasMaximized = true
	c.mu.Unlock()
}

func (c *Conference) ClearMaximizedParticipant() {
	c.mu.Lock()
	c.maximizedParticipant = ""
	c.hasMaximized = false
	c.mu.Unlock()
}

func (c *Conference) IsModerator() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isModerator
}

func (c *Conference) SetModerator(moderator bool) {
	c.mu.Lock()
	c.isModerator = moderator
	c.mu.Unlock()
}

// ParticipantInfo — поток снимков участников (replay-latest).
func (c *Conference) ParticipantInfo() events.Observable[[]ParticipantInfo] {
	return c.participantInfo
}

// SetInfo публикует очередной снимок участников. Пустые записи
// отбрасываются; флаг модератора обновляется по снимку локального
// пользователя.
func (c *Conference) SetInfo(info []ParticipantInfo) {
	filtered := make([]ParticipantInfo, 0, len(info))
	moderator := false
	for _, p := range info {
		if p.IsEmpty() {
			continue
		}
		if p.Contact.IsUser && p.IsModerator {
			moderator = true
		}
		filtered = append(filtered, p)
	}
	c.SetModerator(moderator)
	c.participantInfo.Next(filtered)
}

// PendingCalls — поток транзитных участников (replay-latest).
func (c *Conference) PendingCalls() events.Observable[[]ParticipantInfo] {
	return c.pendingCalls
}

// PendingSnapshot — текущий список транзитных участников.
func (c *Conference) PendingSnapshot() []ParticipantInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ParticipantInfo, len(c.pending))
	copy(out, c.pending)
	return out
}

// AddPending регистрирует транзитного участника («присоединяется…»).
func (c *Conference) AddPending(info ParticipantInfo) {
	c.mu.Lock()
	c.pending = append(c.pending, info)
	snapshot := make([]ParticipantInfo, len(c.pending))
	copy(snapshot, c.pending)
	c.mu.Unlock()
	c.pendingCalls.Next(snapshot)
}

// RemovePending снимает транзитного участника синхронно с исходом
// размещения его плеча (успех или ошибка).
func (c *Conference) RemovePending(info ParticipantInfo) {
	c.mu.Lock()
	for i, p := range c.pending {
		if p.Call == info.Call {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	snapshot := make([]ParticipantInfo, len(c.pending))
	copy(snapshot, c.pending)
	c.mu.Unlock()
	c.pendingCalls.Next(snapshot)
}

// ParticipantRecording — поток множества записываемых контактов.
func (c *Conference) ParticipantRecording() events.Observable[[]Contact] {
	return c.participantRecording
}

// SetParticipantRecording отмечает начало или конец записи контакта.
func (c *Conference) SetParticipantRecording(contact Contact, recording bool) {
	c.mu.Lock()
	if recording {
		found := false
		for _, r := range c.recording {
			if r.URI == contact.URI {
				found = true
				break
			}
		}
		if !found {
			c.recording = append(c.recording, contact)
		}
	} else {
		for i, r := range c.recording {
			if r.URI == contact.URI {
				c.recording = append(c.recording[:i], c.recording[i+1:]...)
				break
			}
		}
	}
	snapshot := make([]Contact, len(c.recording))
	copy(snapshot, c.recording)
	c.mu.Unlock()
	c.participantRecording.Next(snapshot)
}
