package daemon

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
	"github.com/arzzra/call_session/pkg/events"
	"github.com/arzzra/call_session/pkg/session"
)

// Config конфигурация сервиса вызовов
type Config struct {
	Logger session.StructuredLogger

	// SIP опциональный транспорт. Без него состояния вызовов
	// управляются извне через Update* методы.
	SIP *SIPConfig
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Logger: session.NewDefaultLogger(),
	}
}

// Service — реестр вызовов и конференций, реализующий транспортный
// интерфейс сессии. Состояния ног приходят либо от SIP транспорта,
// либо через Update* методы (встраивание, тесты).
type Service struct {
	mu sync.Mutex

	legs  map[string]*conference.Conference // confID -> конференция
	byLeg map[string]string                 // callID -> confID

	confSubjects map[string]*events.Subject[*conference.Conference]
	callSubjects map[string]*events.Subject[*call.Call]

	logger session.StructuredLogger
	sip    *SIPTransport
}

var _ session.CallService = (*Service)(nil)

// NewService создает сервис вызовов
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = session.NoOpLogger{}
	}

	s := &Service{
		legs:         make(map[string]*conference.Conference),
		byLeg:        make(map[string]string),
		confSubjects: make(map[string]*events.Subject[*conference.Conference]),
		callSubjects: make(map[string]*events.Subject[*call.Call]),
		logger:       cfg.Logger.WithComponent("daemon"),
	}

	if cfg.SIP != nil {
		sip, err := NewSIPTransport(cfg.SIP, s, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("создание SIP транспорта: %w", err)
		}
		s.sip = sip
	}
	return s, nil
}

// SIP возвращает транспорт сервиса, nil если он не сконфигурирован
func (s *Service) SIP() *SIPTransport { return s.sip }

// PlaceCall начинает исходящий вызов и регистрирует для него
// одноместную конференцию с тем же ID
func (s *Service) PlaceCall(accountID string, conversationURI, targetURI call.URI, withVideo bool) (*call.Call, error) {
	callID := uuid.NewString()
	leg := call.New(callID, accountID, targetURI, conversationURI, call.DirectionOutgoing, withVideo)
	conf := conference.New(callID, leg)

	s.mu.Lock()
	s.legs[callID] = conf
	s.byLeg[callID] = callID
	s.mu.Unlock()

	s.logger.Info("исходящий вызов размещен",
		session.String("call_id", callID),
		session.String("target", string(targetURI)),
		session.Bool("video", withVideo),
	)

	if s.sip != nil {
		if err := s.sip.Invite(leg, withVideo); err != nil {
			s.dropLeg(callID)
			return nil, fmt.Errorf("отправка INVITE: %w", err)
		}
	}

	s.UpdateCallState(callID, "RINGING", nil)
	return leg, nil
}

// NewIncomingCall регистрирует входящую ногу и ее конференцию.
// Возвращает созданный вызов; состояние начинается со звонка.
func (s *Service) NewIncomingCall(accountID string, contactURI call.URI, details map[string]string) *call.Call {
	callID := uuid.NewString()
	if details == nil {
		details = map[string]string{}
	}
	details[call.DetailAccountID] = accountID
	details[call.DetailPeerNumber] = string(contactURI)

	leg := call.NewFromDetails(callID, details)
	leg.SetContactURI(contactURI)
	conf := conference.New(callID, leg)

	s.mu.Lock()
	s.legs[callID] = conf
	s.byLeg[callID] = callID
	s.mu.Unlock()

	s.logger.Info("входящий вызов",
		session.String("call_id", callID),
		session.String("contact", string(contactURI)),
	)

	s.UpdateCallState(callID, "INCOMING", nil)
	return leg
}

// CallUpdates возвращает поток обновлений вызова
func (s *Service) CallUpdates(c *call.Call) events.Observable[*call.Call] {
	return s.callSubject(c.DaemonID())
}

// ConfUpdates возвращает поток обновлений конференции
func (s *Service) ConfUpdates(confID string) events.Observable[*conference.Conference] {
	return s.confSubject(confID)
}

// Accept принимает входящий вызов
func (s *Service) Accept(accountID, callID string, withVideo bool) error {
	conf := s.findByLeg(callID)
	if conf == nil {
		return fmt.Errorf("вызов %s не найден", callID)
	}
	if s.sip != nil {
		if err := s.sip.Accept(callID, withVideo); err != nil {
			return err
		}
	}
	s.UpdateCallState(callID, "CURRENT", nil)
	return nil
}

// Refuse отклоняет входящий вызов
func (s *Service) Refuse(accountID, callID string) error {
	if s.sip != nil {
		if err := s.sip.Reject(callID); err != nil {
			s.logger.LogError(err, "отклонение через SIP не удалось", session.String("call_id", callID))
		}
	}
	s.UpdateCallState(callID, "HUNGUP", nil)
	return nil
}

// HangUp завершает вызов
func (s *Service) HangUp(accountID, callID string) error {
	if s.sip != nil {
		if err := s.sip.Bye(callID); err != nil {
			s.logger.LogError(err, "BYE не удался", session.String("call_id", callID))
		}
	}
	s.UpdateCallState(callID, "HUNGUP", nil)
	return nil
}

// HangUpConference завершает конференцию целиком
func (s *Service) HangUpConference(accountID, confID string) error {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("конференция %s не найдена", confID)
	}

	for _, leg := range conf.Participants() {
		if s.sip != nil {
			if err := s.sip.Bye(leg.DaemonID()); err != nil {
				s.logger.LogError(err, "BYE не удался", session.String("call_id", leg.DaemonID()))
			}
		}
		_ = leg.SetStatus(call.StatusFinished)
		s.emitCall(leg)
	}
	conf.SetConfState(call.StatusFinished)
	s.notify(conf)
	s.dropConference(conf)
	return nil
}

// Unhold снимает вызов с удержания
func (s *Service) Unhold(accountID, callID string) error {
	s.UpdateCallState(callID, "UNHOLD", nil)
	return nil
}

// Hold ставит вызов на удержание
func (s *Service) Hold(accountID, callID string) error {
	s.UpdateCallState(callID, "HOLD", nil)
	return nil
}

// AddMainParticipant возвращает пользователя в опущенную конференцию
func (s *Service) AddMainParticipant(accountID, confID string) error {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("конференция %s не найдена", confID)
	}
	conf.SetConfState(call.StatusCurrent)
	s.notify(conf)
	return nil
}

// AddParticipant перемещает ногу в существующую конференцию
func (s *Service) AddParticipant(accountID, callID, destAccountID, destConfID string) error {
	s.mu.Lock()
	srcID, ok := s.byLeg[callID]
	src := s.legs[srcID]
	dest := s.legs[destConfID]
	s.mu.Unlock()

	if !ok || src == nil {
		return fmt.Errorf("вызов %s не найден", callID)
	}
	if dest == nil {
		return fmt.Errorf("конференция %s не найдена", destConfID)
	}

	leg := src.FindCallByID(callID)
	if leg == nil {
		return fmt.Errorf("нога %s не найдена в конференции %s", callID, srcID)
	}

	src.RemoveParticipant(leg)
	dest.AddParticipant(leg)
	leg.SetConfID(dest.ID())
	dest.SetConfState(call.StatusCurrent)

	s.mu.Lock()
	s.byLeg[callID] = destConfID
	s.mu.Unlock()

	// Источник распускается, если нога была его единственным участником.
	if src.ParticipantCount() == 0 {
		src.SetConfState(call.StatusFinished)
		s.notify(src)
		s.dropConference(src)
	} else {
		s.notify(src)
	}
	s.notify(dest)

	// Подписчики исходного потока видят объединенную конференцию.
	s.confSubject(srcID).Next(dest)
	return nil
}

// JoinParticipant объединяет два одиночных вызова в новую конференцию
func (s *Service) JoinParticipant(accountID, callID, destAccountID, destCallID string) error {
	s.mu.Lock()
	confA := s.legs[s.byLeg[callID]]
	confB := s.legs[s.byLeg[destCallID]]
	s.mu.Unlock()

	if confA == nil || confB == nil {
		return fmt.Errorf("вызовы %s и %s не найдены", callID, destCallID)
	}
	return s.merge(confA, confB)
}

// JoinConference объединяет две конференции
func (s *Service) JoinConference(accountID, confID, destAccountID, destConfID string) error {
	s.mu.Lock()
	confA := s.legs[confID]
	confB := s.legs[destConfID]
	s.mu.Unlock()

	if confA == nil || confB == nil {
		return fmt.Errorf("конференции %s и %s не найдены", confID, destConfID)
	}
	return s.merge(confA, confB)
}

// merge собирает все ноги обеих конференций в новую
func (s *Service) merge(a, b *conference.Conference) error {
	if a == b {
		return nil
	}

	mergedID := "conf_" + uuid.NewString()
	var merged *conference.Conference

	for _, src := range []*conference.Conference{a, b} {
		for _, leg := range src.Participants() {
			if merged == nil {
				merged = conference.New(mergedID, leg)
			} else {
				merged.AddParticipant(leg)
			}
			leg.SetConfID(mergedID)
		}
	}
	if merged == nil {
		return fmt.Errorf("нечего объединять")
	}
	merged.SetConfState(call.StatusCurrent)

	s.mu.Lock()
	s.legs[mergedID] = merged
	for _, leg := range merged.Participants() {
		s.byLeg[leg.DaemonID()] = mergedID
	}
	delete(s.legs, a.ID())
	delete(s.legs, b.ID())
	s.mu.Unlock()

	s.logger.Info("конференции объединены",
		session.String("conf_id", mergedID),
		session.Int("participants", merged.ParticipantCount()),
	)

	s.notify(merged)
	// Старые потоки переключаются на объединенный объект.
	s.confSubject(a.ID()).Next(merged)
	s.confSubject(b.ID()).Next(merged)
	return nil
}

// RequestVideoMedia включает или заглушает видео в вызове
func (s *Service) RequestVideoMedia(conf *conference.Conference, enable bool) error {
	for _, leg := range conf.Participants() {
		media := leg.MediaList()
		hasVideo := false
		for i := range media {
			if media[i].Type == call.MediaTypeVideo {
				media[i].Muted = !enable
				media[i].Enabled = true
				hasVideo = true
			}
		}
		if !hasVideo && enable {
			media = append(media, call.DefaultVideo())
		}
		leg.SetMediaList(media)
		s.emitCall(leg)
	}
	s.notify(conf)
	return nil
}

// MuteLocalAudio заглушает локальный микрофон в конференции
func (s *Service) MuteLocalAudio(conf *conference.Conference, mute bool) error {
	conf.SetAudioMuted(mute)
	s.notify(conf)
	return nil
}

// HangupParticipant исключает участника из конференции
func (s *Service) HangupParticipant(accountID, confID, peerURI, deviceID string) error {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("конференция %s не найдена", confID)
	}

	leg := conf.FindCallByContact(call.URI(peerURI))
	if leg == nil {
		return fmt.Errorf("участник %s не найден в конференции %s", peerURI, confID)
	}
	return s.HangUp(accountID, leg.DaemonID())
}

// MuteParticipant заглушает участника модератором
func (s *Service) MuteParticipant(accountID, confID, peerURI, deviceID string, mute bool) error {
	return s.updateParticipantFlag(confID, peerURI, func(info *conference.ParticipantInfo) {
		info.AudioModeratorMuted = mute
	})
}

// RaiseHand поднимает или опускает руку участника
func (s *Service) RaiseHand(accountID, confID, peerURI, deviceID string, raise bool) error {
	return s.updateParticipantFlag(confID, peerURI, func(info *conference.ParticipantInfo) {
		info.HandRaised = raise
	})
}

// SetConfMaximizedParticipant разворачивает участника на весь экран
func (s *Service) SetConfMaximizedParticipant(accountID, confID string, peerURI call.URI) error {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("конференция %s не найдена", confID)
	}
	conf.SetMaximizedParticipant(peerURI)
	s.logger.Debug("участник развернут",
		session.String("conf_id", confID),
		session.String("peer", string(peerURI)),
	)
	s.notify(conf)
	return nil
}

// SetConfGridLayout возвращает конференцию к сетке участников
func (s *Service) SetConfGridLayout(accountID, confID string) error {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("конференция %s не найдена", confID)
	}
	conf.ClearMaximizedParticipant()
	s.logger.Debug("раскладка сеткой", session.String("conf_id", confID))
	s.notify(conf)
	return nil
}

func (s *Service) updateParticipantFlag(confID, peerURI string, apply func(*conference.ParticipantInfo)) error {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("конференция %s не найдена", confID)
	}

	infos := make([]conference.ParticipantInfo, 0, conf.ParticipantCount())
	for _, leg := range conf.Participants() {
		info := conference.ParticipantInfo{
			Call:    leg,
			Contact: conference.Contact{URI: leg.ContactURI()},
			SinkID:  leg.DaemonID(),
			Active:  leg.IsOnGoing(),
		}
		if string(leg.ContactURI()) == peerURI {
			apply(&info)
		}
		infos = append(infos, info)
	}
	conf.SetInfo(infos)
	return nil
}

// PlayDTMF проигрывает DTMF символ в активный вызов
func (s *Service) PlayDTMF(key string) error {
	s.logger.Debug("DTMF", session.String("key", key))
	return nil
}

// CurrentConferences возвращает снимок активных конференций
func (s *Service) CurrentConferences() []*conference.Conference {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conference.Conference, 0, len(s.legs))
	for _, conf := range s.legs {
		out = append(out, conf)
	}
	return out
}

// HoldCallOrConference ставит на удержание ногу или конференцию целиком
func (s *Service) HoldCallOrConference(conf *conference.Conference) error {
	if conf.IsConference() {
		conf.SetConfState(call.StatusHold)
		s.notify(conf)
		return nil
	}
	leg := conf.Call()
	if leg == nil {
		return fmt.Errorf("конференция %s пуста", conf.ID())
	}
	return s.Hold(leg.AccountID(), leg.DaemonID())
}

// UpdateCallState применяет состояние демона к ноге и рассылает
// обновления вызова и его конференции
func (s *Service) UpdateCallState(callID, daemonState string, details map[string]string) {
	conf := s.findByLeg(callID)
	if conf == nil {
		s.logger.Warn("состояние для неизвестного вызова",
			session.String("call_id", callID),
			session.String("state", daemonState),
		)
		return
	}
	leg := conf.FindCallByID(callID)
	if leg == nil {
		return
	}

	if details != nil {
		leg.ApplyDetails(details)
	}
	next := call.StatusFromDaemonString(daemonState)
	if next != call.StatusInactive {
		if err := leg.SetStatus(next); err != nil {
			s.logger.Debug("переход состояния отклонен",
				session.String("call_id", callID),
				session.String("state", daemonState),
				session.Err(err),
			)
			return
		}
	}

	s.emitCall(leg)

	if leg.IsOver() && conf.IsConference() {
		conf.RemoveParticipant(leg)
		s.mu.Lock()
		delete(s.byLeg, callID)
		s.mu.Unlock()
	}
	s.notify(conf)

	if conf.IsSimpleCall() && leg.IsOver() {
		s.dropConference(conf)
	}
}

// UpdateConferenceState применяет строку состояния конференции демона
func (s *Service) UpdateConferenceState(confID, daemonConfState string) {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return
	}
	conf.SetConfState(call.StatusFromConferenceString(daemonConfState))
	s.notify(conf)
}

// UpdateParticipantInfo применяет сырую информацию об участниках
// к конференции
func (s *Service) UpdateParticipantInfo(confID string, raw []map[string]string) {
	s.mu.Lock()
	conf := s.legs[confID]
	s.mu.Unlock()
	if conf == nil {
		return
	}

	infos := make([]conference.ParticipantInfo, 0, len(raw))
	for _, entry := range raw {
		uri := call.URI(entry["uri"])
		leg := conf.FindCallByContact(uri)
		contact := conference.Contact{URI: uri}
		infos = append(infos, conference.NewParticipantInfo(leg, contact, entry))
	}
	conf.SetInfo(infos)
}

// Close завершает все вызовы и останавливает транспорт
func (s *Service) Close() error {
	s.mu.Lock()
	confs := make([]*conference.Conference, 0, len(s.legs))
	for _, conf := range s.legs {
		confs = append(confs, conf)
	}
	s.mu.Unlock()

	for _, conf := range confs {
		_ = s.HangUpConference(conf.AccountID(), conf.ID())
	}
	if s.sip != nil {
		return s.sip.Close()
	}
	return nil
}

func (s *Service) findByLeg(callID string) *conference.Conference {
	s.mu.Lock()
	defer s.mu.Unlock()
	confID, ok := s.byLeg[callID]
	if !ok {
		return nil
	}
	return s.legs[confID]
}

func (s *Service) dropLeg(callID string) {
	s.mu.Lock()
	confID, ok := s.byLeg[callID]
	if ok {
		delete(s.byLeg, callID)
		delete(s.legs, confID)
	}
	s.mu.Unlock()
}

func (s *Service) dropConference(conf *conference.Conference) {
	s.mu.Lock()
	delete(s.legs, conf.ID())
	for _, leg := range conf.Participants() {
		if s.byLeg[leg.DaemonID()] == conf.ID() {
			delete(s.byLeg, leg.DaemonID())
		}
	}
	s.mu.Unlock()
}

func (s *Service) notify(conf *conference.Conference) {
	s.confSubject(conf.ID()).Next(conf)
}

func (s *Service) emitCall(leg *call.Call) {
	s.callSubject(leg.DaemonID()).Next(leg)
}

func (s *Service) confSubject(confID string) *events.Subject[*conference.Conference] {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.confSubjects[confID]
	if !ok {
		subj = events.NewReplaySubject[*conference.Conference]()
		s.confSubjects[confID] = subj
	}
	return subj
}

func (s *Service) callSubject(callID string) *events.Subject[*call.Call] {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.callSubjects[callID]
	if !ok {
		subj = events.NewReplaySubject[*call.Call]()
		s.callSubjects[callID] = subj
	}
	return subj
}
