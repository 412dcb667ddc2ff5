package session

import (
	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
	"github.com/arzzra/call_session/pkg/events"
)

// CallService интерфейс к демону: управление вызовами и конференциями.
// Все методы неблокирующие, результаты приходят через потоки событий.
type CallService interface {
	// PlaceCall начинает исходящий вызов, возвращает созданную ногу
	PlaceCall(accountID string, conversationURI call.URI, targetURI call.URI, withVideo bool) (*call.Call, error)

	// CallUpdates поток обновлений конкретного вызова
	CallUpdates(c *call.Call) events.Observable[*call.Call]

	// ConfUpdates поток обновлений конференции (или простого вызова) по ID.
	// Для простого вызова ID конференции совпадает с ID его единственной ноги.
	ConfUpdates(confID string) events.Observable[*conference.Conference]

	Accept(accountID, callID string, withVideo bool) error
	Refuse(accountID, callID string) error
	HangUp(accountID, callID string) error
	HangUpConference(accountID, confID string) error

	Unhold(accountID, callID string) error
	Hold(accountID, callID string) error

	// AddMainParticipant возвращает пользователя в опущенную конференцию
	AddMainParticipant(accountID, confID string) error

	// AddParticipant перемещает ногу в существующую конференцию
	AddParticipant(accountID, callID, destAccountID, destConfID string) error

	// JoinParticipant объединяет два одиночных вызова в конференцию
	JoinParticipant(accountID, callID, destAccountID, destCallID string) error

	// JoinConference объединяет две конференции
	JoinConference(accountID, confID, destAccountID, destConfID string) error

	// RequestVideoMedia запрашивает добавление или мьют видео в вызове
	RequestVideoMedia(conf *conference.Conference, enable bool) error

	MuteLocalAudio(conf *conference.Conference, mute bool) error

	HangupParticipant(accountID, confID, peerURI, deviceID string) error
	MuteParticipant(accountID, confID, peerURI, deviceID string, mute bool) error
	RaiseHand(accountID, confID, peerURI, deviceID string, raise bool) error

	// SetConfMaximizedParticipant разворачивает участника на весь экран
	SetConfMaximizedParticipant(accountID, confID string, peerURI call.URI) error

	// SetConfGridLayout возвращает сетку участников
	SetConfGridLayout(accountID, confID string) error

	PlayDTMF(key string) error

	// CurrentConferences список активных конференций (для выбора цели слияния)
	CurrentConferences() []*conference.Conference

	// HoldCallOrConference ставит на удержание ногу или конференцию целиком
	HoldCallOrConference(conf *conference.Conference) error
}

// VideoEvent событие камеры/декодера
type VideoEvent struct {
	SinkID  string
	Start   bool
	Started bool
	W       int
	H       int
	Rot     int
}

// AudioState состояние аудиомаршрутизации
type AudioState struct {
	OutputType  string
	OutputName  string
	IsSpeakerOn bool
}

// HardwareService интерфейс к камере, микрофону и аудиовыходам
type HardwareService interface {
	HasCamera() bool
	CameraCount() int
	HasMicrophone() bool
	IsVideoAvailable() bool
	HasVideoPermission() bool

	InitVideo() error
	SetPreviewSettings()

	UpdatePreviewVideoSurface(conf *conference.Conference) error
	AddVideoSurface(sinkID string, holder interface{}) error
	UpdateVideoSurfaceID(oldID, newID string) error
	RemoveVideoSurface(sinkID string) error
	AddPreviewVideoSurface(holder interface{}, conf *conference.Conference) error
	RemovePreviewVideoSurface() error

	SwitchInput(accountID, confID string) error
	ToggleSpeakerphone() error
	IsSpeakerphoneOn() bool

	CameraEvents() events.Observable[VideoEvent]
	AudioState() events.Observable[AudioState]

	// RestartAudioLayer перезапускает аудиослой после смены разрешений
	RestartAudioLayer() error
}

// Account данные аккаунта
type Account struct {
	ID                string
	URI               call.URI
	Username          string
	DeviceID          string
	AutoAnswerEnabled bool
}

// AccountService доступ к настройкам аккаунтов
type AccountService interface {
	GetAccount(accountID string) (*Account, error)
}

// Conversation беседа, связанная с контактом
type Conversation struct {
	AccountID  string
	URI        call.URI
	ContactURI call.URI
	IsSwarm    bool

	// CurrentCall текущая конференция беседы, nil если вызова нет
	CurrentCall *conference.Conference
}

// ConversationService доступ к беседам и контактам
type ConversationService interface {
	// StartConversation находит или создает беседу с контактом
	StartConversation(accountID string, contactURI call.URI) (*Conversation, error)

	GetContact(accountID string, contactURI call.URI) (*conference.Contact, error)
}

// BottomSheetButtonStatus видимость и состояние кнопок управления вызовом
type BottomSheetButtonStatus struct {
	IsConference         bool
	IsOnGoing            bool
	HasActiveVideo       bool
	HasMultipleCam       bool
	CanDial              bool
	ShowPluginBtn        bool
	IsOnHold             bool
	IsArmed              bool
	IsSpeakerOn          bool
	IsMicMuted           bool
	HasActiveScreenShare bool
}

// CallView интерфейс к UI. Реализация отвечает за потокобезопасность
// своих методов, презентер вызывает их из своего планировщика.
type CallView interface {
	UpdateConfInfo(participants []conference.ParticipantInfo)
	UpdateParticipantRecording(contacts []conference.Contact)

	InitNormalStateDisplay()
	InitIncomingCallDisplay(hasVideo bool)
	InitOutGoingCallDisplay(hasVideo bool)

	UpdateCallStatus(status call.Status)
	UpdateTime(seconds int64)
	UpdateBottomSheetButtonStatus(status BottomSheetButtonStatus)

	DisplayLocalVideo(display bool)
	DisplayPeerVideo(display bool)
	ResetPreviewVideoSize(width, height, rot int)
	ResetVideoSize(width, height int)

	UpdateAudioState(state AudioState)

	// PrepareCall подготавливает экран до прихода первого состояния
	PrepareCall(incoming bool)

	// HandleCallWakelock держит устройство активным на время звонка
	HandleCallWakelock(isAudioOnly bool)

	DisplayHangupButton(display bool)
	DisplayDialPadKeyboard()

	GoToConversation(accountID string, conversationURI call.URI)
	StartAddParticipant(accountID, confID string)
	EnterPipMode(accountID, callID string)

	Finish()
}
