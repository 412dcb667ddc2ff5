package conference

import (
	"strconv"

	"github.com/arzzra/call_session/pkg/call"
)

// Contact — значение из внешней директории контактов. Конференция не
// владеет контактом, только его снимком для отображения.
type Contact struct {
	URI         call.URI
	DisplayName string
	// IsUser — true для локального пользователя.
	IsUser bool
}

// Ключи снимка участника, как их отдает транспортный слой.
const (
	infoKeyURI                 = "uri"
	infoKeySinkID              = "sinkId"
	infoKeyX                   = "x"
	infoKeyY                   = "y"
	infoKeyWidth               = "w"
	infoKeyHeight              = "h"
	infoKeyActive              = "active"
	infoKeyIsModerator         = "isModerator"
	infoKeyAudioLocalMuted     = "audioLocalMuted"
	infoKeyAudioModeratorMuted = "audioModeratorMuted"
	infoKeyVideoMuted          = "videoMuted"
	infoKeyHandRaised          = "handRaised"
)

// ParticipantInfo — снимок раскладки и состояния одного участника
// конференции. Call равен nil для участника без локального плеча
// (например, удаленный участник чужой конференции).
type ParticipantInfo struct {
	Call    *call.Call
	Contact Contact

	SinkID     string
	X, Y, W, H int

	Active              bool
	IsModerator         bool
	AudioLocalMuted     bool
	AudioModeratorMuted bool
	VideoMuted          bool
	HandRaised          bool

	// Pending — участник в процессе присоединения: плечо размещено,
	// но в конференцию еще не вошло.
	Pending bool
}

// IsEmpty — снимок без плеча и без контакта бесполезен для отображения.
func (p ParticipantInfo) IsEmpty() bool {
	return p.Call == nil && p.Contact.URI.IsEmpty()
}

// NewParticipantInfo собирает снимок участника из карты транспортного слоя.
func NewParticipantInfo(c *call.Call, contact Contact, info map[string]string) ParticipantInfo {
	atoi := func(key string) int {
		v, _ := strconv.Atoi(info[key])
		return v
	}
	return ParticipantInfo{
		Call:                c,
		Contact:             contact,
		SinkID:              info[infoKeySinkID],
		X:                   atoi(infoKeyX),
		Y:                   atoi(infoKeyY),
		W:                   atoi(infoKeyWidth),
		H:                   atoi(infoKeyHeight),
		Active:              info[infoKeyActive] == "true",
		IsModerator:         info[infoKeyIsModerator] == "true",
		AudioLocalMuted:     info[infoKeyAudioLocalMuted] == "true",
		AudioModeratorMuted: info[infoKeyAudioModeratorMuted] == "true",
		VideoMuted:          info[infoKeyVideoMuted] == "true",
		HandRaised:          info[infoKeyHandRaised] == "true",
	}
}

// NewPendingInfo собирает снимок «присоединяется…» для транзитного плеча.
func NewPendingInfo(c *call.Call, contact Contact) ParticipantInfo {
	sinkID := ""
	if c != nil {
		sinkID = c.DaemonID()
	}
	return ParticipantInfo{
		Call:    c,
		Contact: contact,
		SinkID:  sinkID,
		Pending: true,
	}
}
