// Package call описывает одно сигнальное плечо вызова к одному абоненту:
// направление, статус (машина состояний), медиа-описание и ссылки на
// контакт и разговор. Плечо живет от размещения вызова (или первого
// события о входящем) до наблюдения терминального статуса.
//
// Контакт и разговор хранятся как URI-ключи и разрешаются через внешнюю
// директорию: плечо не владеет ни контактом, ни разговором.
package call

import (
	"strconv"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// URI — ключ контакта или разговора во внешней директории.
type URI string

func (u URI) IsEmpty() bool { return u == "" }

func (u URI) String() string { return string(u) }

// Direction направление плеча.
type Direction int

const (
	DirectionIncoming Direction = iota
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "OUTGOING"
	}
	return "INCOMING"
}

// Ключи карты деталей вызова транспортного слоя.
const (
	DetailAccountID   = "ACCOUNTID"
	DetailCallType    = "CALL_TYPE"
	DetailCallState   = "CALL_STATE"
	DetailPeerNumber  = "PEER_NUMBER"
	DetailPeerHolding = "PEER_HOLDING"
	DetailAudioMuted  = "AUDIO_MUTED"
	DetailVideoMuted  = "VIDEO_MUTED"
	DetailAudioCodec  = "AUDIO_CODEC"
	DetailVideoCodec  = "VIDEO_CODEC"
	DetailConfID      = "CONF_ID"
)

// Call — одно сигнальное плечо. Идентичность (AccountID, DaemonID)
// стабильна на все время жизни плеча. Все методы thread-safe.
type Call struct {
	mu sync.RWMutex

	// Идентичность плеча.
	accountID string
	daemonID  string

	direction Direction
	status    Status
	machine   *fsm.FSM

	// Ключи во внешней директории.
	contactURI      URI
	conversationURI URI
	peerNumber      string

	timestamp    time.Time
	timestampEnd time.Time

	mediaList []Media

	audioMuted  bool
	videoMuted  bool
	peerHolding bool
	audioCodec  string
	videoCodec  string
	confID      string
}

// New создает плечо вызова. Для вызова с видео медиа-список содержит
// аудио и видео позиции, иначе только аудио.
func New(daemonID, accountID string, contactURI, conversationURI URI, direction Direction, wantVideo bool) *Call {
	media := []Media{DefaultAudio()}
	if wantVideo {
		media = append(media, DefaultVideo())
	}
	return &Call{
		accountID:       accountID,
		daemonID:        daemonID,
		direction:       direction,
		status:          StatusInactive,
		machine:         newStatusFSM(),
		contactURI:      contactURI,
		conversationURI: conversationURI,
		timestamp:       time.Now(),
		mediaList:       media,
	}
}

// NewFromDetails создает плечо из карты деталей транспортного слоя
// (входящий вызов, о котором демон сообщил первым).
func NewFromDetails(daemonID string, details map[string]string) *Call {
	direction := DirectionIncoming
	if t, err := strconv.Atoi(details[DetailCallType]); err == nil && t == 1 {
		direction = DirectionOutgoing
	}
	c := New(daemonID, details[DetailAccountID], URI(details[DetailPeerNumber]), "", direction, false)
	c.peerNumber = details[DetailPeerNumber]
	if state, ok := details[DetailCallState]; ok {
		_ = c.SetStatus(StatusFromDaemonString(state))
	}
	c.ApplyDetails(details)
	return c
}

func (c *Call) AccountID() string { return c.accountID }
func (c *Call) DaemonID() string  { return c.daemonID }

func (c *Call) Direction() Direction { return c.direction }

func (c *Call) IsIncoming() bool { return c.direction == DirectionIncoming }

// Timestamp — момент начала плеча.
func (c *Call) Timestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestamp
}

// TimestampEnd — момент наблюдения терминального статуса (нулевое
// время, пока плечо живо).
func (c *Call) TimestampEnd() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestampEnd
}

func (c *Call) ContactURI() URI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contactURI
}

func (c *Call) ConversationURI() URI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationURI
}

func (c *Call) SetContactURI(uri URI) {
	c.mu.Lock()
	c.contactURI = uri
	c.mu.Unlock()
}

// Status возвращает текущий статус плеча.
func (c *Call) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus выполняет переход статуса с валидацией машины состояний.
// Переход в то же состояние — no-op. Терминальный переход фиксирует
// время окончания плеча.
func (c *Call) SetStatus(next Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := transition(c.machine, c.status, next); err != nil {
		return err
	}
	c.status = next
	if next.IsOver() && c.timestampEnd.IsZero() {
		c.timestampEnd = time.Now()
	}
	return nil
}

func (c *Call) IsRinging() bool { return c.Status().IsRinging() }
func (c *Call) IsOnGoing() bool { return c.Status().IsOnGoing() }
func (c *Call) IsOver() bool    { return c.Status().IsOver() }

// ApplyDetails применяет карту деталей транспортного слоя к плечу.
func (c *Call) ApplyDetails(details map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.peerHolding = details[DetailPeerHolding] == "true"
	c.audioMuted = details[DetailAudioMuted] == "true"
	c.videoMuted = details[DetailVideoMuted] == "true"
	if codec, ok := details[DetailAudioCodec]; ok {
		c.audioCodec = codec
	}
	if codec, ok := details[DetailVideoCodec]; ok {
		c.videoCodec = codec
	}
	if confID, ok := details[DetailConfID]; ok {
		c.confID = confID
	}
}

// ConfID — идентификатор конференции, к которой демон приписал плечо
// (пустая строка для одиночного вызова).
func (c *Call) ConfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.confID
}

func (c *Call) SetConfID(id string) {
	c.mu.Lock()
	c.confID = id
	c.mu.Unlock()
}

func (c *Call) IsConferenceParticipant() bool { return c.ConfID() != "" }

func (c *Call) IsAudioMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audioMuted
}

func (c *Call) IsVideoMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoMuted
}

func (c *Call) IsPeerHolding() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerHolding
}

// MediaList возвращает копию медиа-описания плеча.
func (c *Call) MediaList() []Media {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Media, len(c.mediaList))
	copy(out, c.mediaList)
	return out
}

// SetMediaList заменяет медиа-описание плеча (результат переговоров
// транспортного слоя).
func (c *Call) SetMediaList(media []Media) {
	c.mu.Lock()
	c.mediaList = make([]Media, len(media))
	copy(c.mediaList, media)
	c.mu.Unlock()
}

// HasMedia возвращает true, если в описании есть включенная позиция
// данного типа.
func (c *Call) HasMedia(t MediaType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.mediaList {
		if m.Enabled && m.Type == t {
			return true
		}
	}
	return false
}

// HasActiveMedia возвращает true, если позиция данного типа включена
// и не замьючена.
func (c *Call) HasActiveMedia(t MediaType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.mediaList {
		if m.Enabled && !m.Muted && m.Type == t {
			return true
		}
	}
	return false
}

// HasActiveScreenSharing возвращает true при активной демонстрации экрана.
func (c *Call) HasActiveScreenSharing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.mediaList {
		if m.Source == ScreenShareSource && m.Enabled && !m.Muted {
			return true
		}
	}
	return false
}

// IsAudioOnly — плечо без видео-позиции.
func (c *Call) IsAudioOnly() bool {
	return !c.HasMedia(MediaTypeVideo)
}
