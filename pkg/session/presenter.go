package session

import (
	"time"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
	"github.com/arzzra/call_session/pkg/events"
)

// Варианты обработки входящего вызова во время активного разговора
const (
	OptionAcceptEnd  = "ACCEPT_END"  // завершить текущий и принять новый
	OptionAcceptHold = "ACCEPT_HOLD" // поставить текущий на удержание и принять новый
)

// Config конфигурация презентера сессии
type Config struct {
	// JoinGracePeriod задержка между ответом отложенного участника
	// и его слиянием в конференцию
	JoinGracePeriod time.Duration

	// TimeUpdateInterval период обновления таймера разговора
	TimeUpdateInterval time.Duration

	Logger  StructuredLogger
	Metrics *MetricsCollector
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		JoinGracePeriod:    time.Second,
		TimeUpdateInterval: time.Second,
		Logger:             NewDefaultLogger(),
		Metrics:            NewMetricsCollector(&MetricsConfig{Enabled: false}),
	}
}

// Presenter — оркестратор одной сессии вызова или конференции.
//
// Все мутации внутреннего состояния выполняются на собственном
// последовательном планировщике: публичные методы только ставят задачи
// в очередь и немедленно возвращаются. События транспортного слоя
// сериализуются в тот же контекст через ObserveOn.
type Presenter struct {
	calls         CallService
	hardware      HardwareService
	accounts      AccountService
	conversations ConversationService
	view          CallView

	logger  StructuredLogger
	metrics *MetricsCollector
	cfg     Config

	scheduler *events.Scheduler
	bag       events.Bag
	confBag   *events.Bag

	// Все поля ниже читаются и пишутся только из планировщика.
	conference           *conference.Conference
	onGoingCall          bool
	permissionChanged    bool
	incomingIsFullIntent bool
	callInitialized      bool
	wantVideo            bool
	micMuted             bool
	videoMuted           bool
	uiVisible            bool
	finished             bool

	lastInfo    []conference.ParticipantInfo
	lastPending []conference.ParticipantInfo

	surfaces       *SurfaceRegistry
	timeUpdateTask events.Disposable
}

// New создает презентер и подписывается на аппаратные события.
// Сессия начинается вызовом InitOutgoing или InitIncoming.
func New(calls CallService, hardware HardwareService, accounts AccountService,
	conversations ConversationService, view CallView, cfg *Config) *Presenter {

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = NoOpLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetricsCollector(&MetricsConfig{Enabled: false})
	}

	p := &Presenter{
		calls:         calls,
		hardware:      hardware,
		accounts:      accounts,
		conversations: conversations,
		view:          view,
		logger:        cfg.Logger.WithComponent("presenter"),
		metrics:       cfg.Metrics,
		cfg:           *cfg,
		scheduler:     events.NewScheduler(),
		confBag:       &events.Bag{},
		uiVisible:     true,
	}
	p.surfaces = NewSurfaceRegistry(hardware, cfg.Logger)

	p.bag.Add(hardware.CameraEvents().Subscribe(events.ObserveOn(p.scheduler, events.Observer[VideoEvent]{
		OnNext: p.onVideoEvent,
	})))
	p.bag.Add(hardware.AudioState().Subscribe(events.ObserveOn(p.scheduler, events.Observer[AudioState]{
		OnNext: func(state AudioState) {
			if !p.finished {
				p.view.UpdateAudioState(state)
			}
		},
	})))

	return p
}

// InitOutgoing начинает исходящий вызов на контакт
func (p *Presenter) InitOutgoing(accountID string, conversationURI, contactURI call.URI, withVideo bool) {
	p.scheduler.Post(func() {
		if accountID == "" || contactURI.IsEmpty() {
			p.logger.LogError(ErrInvalidCallTarget(accountID, contactURI), "невозможно начать вызов")
			p.view.Finish()
			return
		}
		if withVideo && !p.hardware.HasCamera() {
			withVideo = false
		}
		p.wantVideo = withVideo
		p.callInitialized = true
		p.view.PrepareCall(false)

		leg, err := p.calls.PlaceCall(accountID, conversationURI, contactURI, withVideo)
		if err != nil {
			serr := ErrCallSetupFailed(accountID, contactURI, err)
			p.metrics.ErrorOccurred(serr)
			p.logger.LogError(serr, "исходящий вызов не удался")
			p.finishSession()
			return
		}

		p.metrics.SessionStarted(leg.DaemonID())
		p.subscribeConference(leg.DaemonID())
	})
}

// InitIncoming подключает презентер к входящему вызову.
// fullIntent означает, что UI открыт целиком и готов показывать экран
// входящего вызова до явного подтверждения инициализации.
func (p *Presenter) InitIncoming(confID string, fullIntent bool) {
	p.scheduler.Post(func() {
		p.incomingIsFullIntent = fullIntent
		p.metrics.SessionStarted(confID)

		// Первое событие только готовит экран: состояние начинает
		// обрабатываться после того, как вызов инициализирован.
		disp := p.calls.ConfUpdates(confID).Subscribe(events.ObserveOn(p.scheduler, events.Observer[*conference.Conference]{
			OnNext: func(conf *conference.Conference) {
				if !p.callInitialized {
					p.callInitialized = true
					p.wantVideo = conf.HasVideo()
					// Полный интент сам показывает экран входящего;
					// подготовка нужна только фоновому запуску.
					if !p.incomingIsFullIntent {
						p.view.PrepareCall(true)
					}
				}
				p.confUpdate(conf)
			},
			OnError: func(err error) {
				p.logger.LogError(err, "поток конференции завершился ошибкой", String("conf_id", confID))
				p.finishSession()
			},
		}))
		p.bag.Add(disp)
	})
}

func (p *Presenter) subscribeConference(confID string) {
	disp := p.calls.ConfUpdates(confID).Subscribe(events.ObserveOn(p.scheduler, events.Observer[*conference.Conference]{
		OnNext: p.confUpdate,
		OnError: func(err error) {
			p.logger.LogError(err, "поток конференции завершился ошибкой", String("conf_id", confID))
			p.finishSession()
		},
	}))
	p.bag.Add(disp)
}

// confUpdate — единственная точка реакции на изменение состояния
// конференции. Выполняется строго на планировщике.
func (p *Presenter) confUpdate(conf *conference.Conference) {
	if p.finished || conf == nil {
		return
	}
	p.showConference(conf)

	status := conf.State()
	p.metrics.StateTransition(status)
	p.logger.Debug("обновление конференции",
		String("conf_id", conf.ID()),
		String("state", status.String()),
	)

	switch {
	case status == call.StatusHold:
		// Пользователь вернулся к опущенному вызову: снимаем удержание.
		// Для конференции это отдельная операция демона.
		if conf.IsSimpleCall() {
			if leg := conf.Call(); leg != nil {
				if err := p.calls.Unhold(leg.AccountID(), leg.DaemonID()); err != nil {
					p.logger.LogError(err, "снятие удержания не удалось")
				}
			}
		} else {
			if err := p.calls.AddMainParticipant(conf.AccountID(), conf.ID()); err != nil {
				p.logger.LogError(err, "возврат в конференцию не удался")
			}
		}
	case conf.IsOnGoing():
		p.confOnGoing(conf)
	case conf.IsRinging():
		p.confRinging(conf, status)
	default:
		p.finishSession()
	}
}

func (p *Presenter) confOnGoing(conf *conference.Conference) {
	p.onGoingCall = true
	p.view.InitNormalStateDisplay()
	p.prepareBottomSheetButtons()

	if conf.HasVideo() {
		// Локальное превью требует камеры, привязка поверхности пира — нет.
		if p.hardware.HasCamera() {
			p.hardware.SetPreviewSettings()
			if err := p.hardware.UpdatePreviewVideoSurface(conf); err != nil {
				p.logger.LogError(err, "обновление поверхности превью не удалось")
			}
		}

		if old, ok := p.surfaces.SinkID(RoleMain); ok && old != conf.ID() {
			p.metrics.SurfaceRebind()
		}
		if err := p.surfaces.UpdateID(RoleMain, conf.ID()); err != nil {
			p.logger.LogError(err, "переключение основной поверхности не удалось")
		}
		if err := p.surfaces.UpdateID(RolePlugin, conf.PluginID()); err != nil {
			p.logger.LogError(err, "переключение плагинной поверхности не удалось")
		}

		p.view.DisplayLocalVideo(conf.HasActiveVideo() && !p.videoMuted)

		// Отложенная смена видеовхода после выдачи разрешения
		// применяется ровно один раз.
		if p.permissionChanged {
			p.permissionChanged = false
			if err := p.hardware.SwitchInput(conf.AccountID(), conf.ID()); err != nil {
				p.logger.LogError(err, "смена видеовхода после разрешения не удалась")
			}
		}
	}

	if p.timeUpdateTask != nil {
		p.timeUpdateTask.Dispose()
	}
	p.timeUpdateTask = p.scheduler.SchedulePeriodic(p.cfg.TimeUpdateInterval, p.updateTime)
}

func (p *Presenter) confRinging(conf *conference.Conference, status call.Status) {
	p.view.HandleCallWakelock(!conf.HasVideo())

	if conf.IsIncoming() {
		account, err := p.accounts.GetAccount(conf.AccountID())
		if err == nil && account.AutoAnswerEnabled {
			p.acceptConference(conf, p.wantVideo)
			return
		}
		if p.incomingIsFullIntent {
			p.view.InitIncomingCallDisplay(conf.HasVideo())
		}
		return
	}

	p.view.UpdateCallStatus(status)
	p.view.InitOutGoingCallDisplay(conf.HasVideo())
	p.onGoingCall = false
}

// showConference переподписывает презентер на потоки участников при
// смене объекта конференции (слияние вызовов порождает новый объект).
func (p *Presenter) showConference(conf *conference.Conference) {
	if p.conference == conf {
		return
	}
	p.conference = conf
	p.confBag.Dispose()
	p.confBag = &events.Bag{}
	p.lastInfo = nil
	p.lastPending = nil

	p.confBag.Add(conf.ParticipantInfo().Subscribe(events.ObserveOn(p.scheduler, events.Observer[[]conference.ParticipantInfo]{
		OnNext: func(info []conference.ParticipantInfo) {
			p.lastInfo = info
			p.emitConfInfo()
		},
	})))
	p.confBag.Add(conf.PendingCalls().Subscribe(events.ObserveOn(p.scheduler, events.Observer[[]conference.ParticipantInfo]{
		OnNext: func(pending []conference.ParticipantInfo) {
			p.lastPending = pending
			p.emitConfInfo()
		},
	})))
	p.confBag.Add(conf.ParticipantRecording().Subscribe(events.ObserveOn(p.scheduler, events.Observer[[]conference.Contact]{
		OnNext: func(contacts []conference.Contact) {
			if !p.finished {
				p.view.UpdateParticipantRecording(contacts)
			}
		},
	})))
}

// emitConfInfo отдает в UI объединенный список: подтвержденные участники
// демона плюс отложенные, еще не слитые в конференцию.
//
// Для простого вызова, по которому демон не прислал раскладку, строка
// синтезируется из единственного плеча: UI всегда есть что показать.
func (p *Presenter) emitConfInfo() {
	if p.finished {
		return
	}
	info := p.lastInfo
	if len(info) == 0 {
		if conf := p.conference; conf != nil && conf.IsSimpleCall() {
			if leg := conf.Call(); leg != nil {
				info = []conference.ParticipantInfo{{
					Call:    leg,
					Contact: conference.Contact{URI: leg.ContactURI()},
					SinkID:  leg.DaemonID(),
					Active:  true,
				}}
			}
		}
	}
	merged := make([]conference.ParticipantInfo, 0, len(info)+len(p.lastPending))
	merged = append(merged, info...)
	merged = append(merged, p.lastPending...)
	p.view.UpdateConfInfo(merged)
}

func (p *Presenter) updateTime() {
	conf := p.conference
	if p.finished || conf == nil {
		return
	}
	if start, ok := conf.TimestampStart(); ok && conf.IsOnGoing() {
		p.view.UpdateTime(int64(time.Since(start).Seconds()))
	} else {
		p.view.UpdateTime(-1)
	}
}

// finishSession завершает сессию: освобождает подписки, таймер и
// видеоповерхности ровно один раз. Планировщик не закрывается здесь,
// его останавливает владелец через Close.
func (p *Presenter) finishSession() {
	if p.finished {
		return
	}
	p.finished = true

	if p.timeUpdateTask != nil {
		p.timeUpdateTask.Dispose()
		p.timeUpdateTask = nil
	}
	p.confBag.Dispose()
	p.bag.Dispose()
	p.surfaces.ReleaseAll()

	if p.conference != nil {
		p.metrics.SessionFinished(p.conference.ID())
	}
	p.conference = nil
	p.onGoingCall = false

	p.view.Finish()
}

// AcceptCall принимает входящий вызов
func (p *Presenter) AcceptCall(withVideo bool) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		p.wantVideo = withVideo
		p.acceptConference(conf, withVideo)
	})
}

func (p *Presenter) acceptConference(conf *conference.Conference, withVideo bool) {
	leg := conf.FirstCall()
	if leg == nil {
		return
	}
	if err := p.calls.Accept(leg.AccountID(), leg.DaemonID(), withVideo); err != nil {
		p.logger.LogError(err, "принятие вызова не удалось", String("call_id", leg.DaemonID()))
	}
}

// RefuseCall отклоняет входящий вызов
func (p *Presenter) RefuseCall() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			p.view.Finish()
			return
		}
		if leg := conf.FirstCall(); leg != nil {
			if err := p.calls.Refuse(leg.AccountID(), leg.DaemonID()); err != nil {
				p.logger.LogError(err, "отклонение вызова не удалось")
			}
		}
		p.finishSession()
	})
}

// HangupCall завершает текущий вызов или конференцию целиком,
// включая еще не слитые отложенные ноги
func (p *Presenter) HangupCall() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf != nil {
			if conf.IsConference() {
				if err := p.calls.HangUpConference(conf.AccountID(), conf.ID()); err != nil {
					p.logger.LogError(err, "завершение конференции не удалось")
				}
			} else if leg := conf.Call(); leg != nil {
				if err := p.calls.HangUp(leg.AccountID(), leg.DaemonID()); err != nil {
					p.logger.LogError(err, "завершение вызова не удалось")
				}
			}
			for _, pending := range conf.PendingSnapshot() {
				if pending.Call == nil {
					continue
				}
				if err := p.calls.HangUp(pending.Call.AccountID(), pending.Call.DaemonID()); err != nil {
					p.logger.LogError(err, "завершение отложенной ноги не удалось")
				}
			}
		}
		p.finishSession()
	})
}

// HangupCurrentCall завершает разговор, идущий параллельно с этой
// сессией: используется при принятии второго входящего вызова
func (p *Presenter) HangupCurrentCall() {
	p.scheduler.Post(func() { p.hangupOther() })
}

// HoldCurrentCall ставит параллельный разговор на удержание
func (p *Presenter) HoldCurrentCall() {
	p.scheduler.Post(func() { p.holdOther() })
}

func (p *Presenter) hangupOther() {
	for _, other := range p.otherOngoing() {
		if other.IsConference() {
			if err := p.calls.HangUpConference(other.AccountID(), other.ID()); err != nil {
				p.logger.LogError(err, "завершение параллельного разговора не удалось")
			}
		} else if leg := other.Call(); leg != nil {
			if err := p.calls.HangUp(leg.AccountID(), leg.DaemonID()); err != nil {
				p.logger.LogError(err, "завершение параллельного разговора не удалось")
			}
		}
	}
}

func (p *Presenter) holdOther() {
	for _, other := range p.otherOngoing() {
		if err := p.calls.HoldCallOrConference(other); err != nil {
			p.logger.LogError(err, "удержание параллельного разговора не удалось")
		}
	}
}

func (p *Presenter) otherOngoing() []*conference.Conference {
	var out []*conference.Conference
	for _, conf := range p.calls.CurrentConferences() {
		if p.conference != nil && conf.ID() == p.conference.ID() {
			continue
		}
		if conf.IsOnGoing() {
			out = append(out, conf)
		}
	}
	return out
}

// HandleOption обрабатывает выбор пользователя при входящем вызове
// во время активного разговора
func (p *Presenter) HandleOption(option string) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		switch option {
		case OptionAcceptEnd:
			p.hangupOther()
		case OptionAcceptHold:
			p.holdOther()
		default:
			p.logger.Warn("неизвестный вариант обработки", String("option", option))
			return
		}
		p.acceptConference(conf, p.wantVideo)
	})
}

// MuteMicrophone включает или выключает локальный микрофон
func (p *Presenter) MuteMicrophone(mute bool) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		p.micMuted = mute
		if err := p.calls.MuteLocalAudio(conf, mute); err != nil {
			p.logger.LogError(err, "переключение микрофона не удалось")
		}
		p.prepareBottomSheetButtons()
	})
}

// SwitchOnOffCamera включает или выключает локальную камеру
func (p *Presenter) SwitchOnOffCamera() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		p.videoMuted = !p.videoMuted
		p.wantVideo = !p.videoMuted
		if err := p.calls.RequestVideoMedia(conf, !p.videoMuted); err != nil {
			p.logger.LogError(err, "переключение камеры не удалось")
			return
		}
		p.view.DisplayLocalVideo(!p.videoMuted)
		p.prepareBottomSheetButtons()
	})
}

// SwitchCamera переключает активную камеру устройства
func (p *Presenter) SwitchCamera() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if err := p.hardware.SwitchInput(conf.AccountID(), conf.ID()); err != nil {
			p.logger.LogError(err, "смена камеры не удалась")
		}
	})
}

// ToggleSpeakerphone переключает громкую связь
func (p *Presenter) ToggleSpeakerphone() {
	p.scheduler.Post(func() {
		if err := p.hardware.ToggleSpeakerphone(); err != nil {
			p.logger.LogError(err, "переключение громкой связи не удалось")
		}
		p.prepareBottomSheetButtons()
	})
}

// MaximizeParticipant разворачивает участника на весь экран.
// Повторный вызов для того же участника возвращает сетку.
func (p *Presenter) MaximizeParticipant(uri call.URI) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		var err error
		if current, ok := conf.MaximizedParticipant(); ok && current == uri {
			conf.ClearMaximizedParticipant()
			err = p.calls.SetConfGridLayout(conf.AccountID(), conf.ID())
		} else {
			conf.SetMaximizedParticipant(uri)
			err = p.calls.SetConfMaximizedParticipant(conf.AccountID(), conf.ID(), uri)
		}
		if err != nil {
			p.logger.LogError(err, "смена раскладки конференции не удалась",
				String("conf_id", conf.ID()),
			)
		}
		p.emitConfInfo()
	})
}

// RequestPipMode запрашивает режим картинка-в-картинке для идущего
// видеовызова
func (p *Presenter) RequestPipMode() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil || !conf.IsOnGoing() || !conf.HasVideo() {
			return
		}
		leg := conf.FirstCall()
		if leg == nil {
			return
		}
		p.view.EnterPipMode(conf.AccountID(), leg.DaemonID())
	})
}

// PrepareBottomSheetButtons пересчитывает состояние кнопок управления
func (p *Presenter) PrepareBottomSheetButtons() {
	p.scheduler.Post(p.prepareBottomSheetButtons)
}

func (p *Presenter) prepareBottomSheetButtons() {
	conf := p.conference
	if p.finished || conf == nil {
		return
	}
	p.view.UpdateBottomSheetButtonStatus(BottomSheetButtonStatus{
		IsConference:         conf.IsConference(),
		IsOnGoing:            conf.IsOnGoing(),
		HasActiveVideo:       conf.HasActiveVideo(),
		HasMultipleCam:       p.hardware.CameraCount() > 1,
		CanDial:              p.onGoingCall,
		ShowPluginBtn:        conf.HasVideo(),
		IsOnHold:             conf.State() == call.StatusHold,
		IsArmed:              conf.IsOnGoing(),
		IsSpeakerOn:          p.hardware.IsSpeakerphoneOn(),
		IsMicMuted:           p.micMuted || conf.IsAudioMuted(),
		HasActiveScreenShare: conf.HasActiveScreenSharing(),
	})
}

// PositiveButtonClicked — принять входящий вызов или завершить текущий
func (p *Presenter) PositiveButtonClicked() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if conf.IsRinging() && conf.IsIncoming() {
			p.wantVideo = conf.HasVideo()
			p.acceptConference(conf, p.wantVideo)
			return
		}
		p.HangupCall()
	})
}

// NegativeButtonClicked — отклонить входящий вызов или завершить текущий
func (p *Presenter) NegativeButtonClicked() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if conf.IsRinging() && conf.IsIncoming() {
			p.RefuseCall()
			return
		}
		p.HangupCall()
	})
}

// ToggleButtonClicked — завершить идущий разговор; во время звонка
// входящего вызова кнопка неактивна
func (p *Presenter) ToggleButtonClicked() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if conf.IsRinging() && conf.IsIncoming() {
			return
		}
		p.HangupCall()
	})
}

// RaiseHand поднимает или опускает руку в конференции
func (p *Presenter) RaiseHand(raise bool) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		account, err := p.accounts.GetAccount(conf.AccountID())
		if err != nil {
			p.logger.LogError(err, "аккаунт не найден", String("account_id", conf.AccountID()))
			return
		}
		if err := p.calls.RaiseHand(account.ID, conf.ID(), string(account.URI), account.DeviceID, raise); err != nil {
			p.logger.LogError(err, "поднятие руки не удалось")
		}
	})
}

// SendDtmf отправляет DTMF символ в активный вызов
func (p *Presenter) SendDtmf(key string) {
	p.scheduler.Post(func() {
		if err := p.calls.PlayDTMF(key); err != nil {
			p.logger.LogError(err, "отправка DTMF не удалась", String("key", key))
		}
	})
}

// HangupParticipant исключает участника из конференции
func (p *Presenter) HangupParticipant(info conference.ParticipantInfo) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if err := p.calls.HangupParticipant(conf.AccountID(), conf.ID(), string(info.Contact.URI), info.SinkID); err != nil {
			p.logger.LogError(err, "исключение участника не удалось")
		}
	})
}

// MuteParticipant заглушает участника конференции модератором
func (p *Presenter) MuteParticipant(info conference.ParticipantInfo, mute bool) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if err := p.calls.MuteParticipant(conf.AccountID(), conf.ID(), string(info.Contact.URI), info.SinkID, mute); err != nil {
			p.logger.LogError(err, "заглушение участника не удалось")
		}
	})
}

// ChatClick открывает беседу, связанную с вызовом
func (p *Presenter) ChatClick() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		leg := conf.FirstCall()
		if leg == nil || leg.ConversationURI().IsEmpty() {
			return
		}
		p.view.GoToConversation(leg.AccountID(), leg.ConversationURI())
	})
}

// DialpadClick показывает клавиатуру DTMF
func (p *Presenter) DialpadClick() {
	p.scheduler.Post(func() {
		p.view.DisplayDialPadKeyboard()
	})
}

// UIVisibilityChanged уведомляет о показе или скрытии элементов UI
func (p *Presenter) UIVisibilityChanged(displayed bool) {
	p.scheduler.Post(func() {
		p.uiVisible = displayed
		p.view.DisplayHangupButton(p.onGoingCall && displayed)
	})
}

// StartAddParticipant открывает выбор контакта для добавления
func (p *Presenter) StartAddParticipant() {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		p.view.StartAddParticipant(conf.AccountID(), conf.ID())
	})
}

// VideoSurfaceCreated привязывает основную видеоповерхность
func (p *Presenter) VideoSurfaceCreated(holder interface{}) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if err := p.surfaces.Attach(RoleMain, conf.ID(), holder, conf); err != nil {
			p.logger.LogError(err, "привязка основной поверхности не удалась")
			return
		}
		p.view.DisplayPeerVideo(true)
	})
}

// VideoSurfaceDestroyed отвязывает основную видеоповерхность
func (p *Presenter) VideoSurfaceDestroyed() {
	p.scheduler.Post(func() {
		p.surfaces.Release(RoleMain)
	})
}

// PluginSurfaceCreated привязывает поверхность видеоплагинов
func (p *Presenter) PluginSurfaceCreated(holder interface{}) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			return
		}
		if err := p.surfaces.Attach(RolePlugin, conf.PluginID(), holder, conf); err != nil {
			p.logger.LogError(err, "привязка плагинной поверхности не удалась")
		}
	})
}

// PluginSurfaceDestroyed отвязывает поверхность видеоплагинов
func (p *Presenter) PluginSurfaceDestroyed() {
	p.scheduler.Post(func() {
		p.surfaces.Release(RolePlugin)
	})
}

// PreviewVideoSurfaceCreated привязывает поверхность локального превью
func (p *Presenter) PreviewVideoSurfaceCreated(holder interface{}) {
	p.scheduler.Post(func() {
		if err := p.surfaces.Attach(RolePreview, "preview", holder, p.conference); err != nil {
			p.logger.LogError(err, "привязка превью не удалась")
		}
	})
}

// PreviewVideoSurfaceDestroyed отвязывает поверхность превью
func (p *Presenter) PreviewVideoSurfaceDestroyed() {
	p.scheduler.Post(func() {
		p.surfaces.Release(RolePreview)
	})
}

// CameraPermissionChanged применяется при следующем активном состоянии:
// немедленный RequestVideoMedia до восстановления конференции теряется
func (p *Presenter) CameraPermissionChanged(granted bool) {
	p.scheduler.Post(func() {
		if !granted || !p.hardware.IsVideoAvailable() {
			return
		}
		if err := p.hardware.InitVideo(); err != nil {
			p.logger.LogError(err, "инициализация видео не удалась")
			return
		}
		p.permissionChanged = true
	})
}

// AudioPermissionChanged перезапускает аудиослой после выдачи разрешения
func (p *Presenter) AudioPermissionChanged(granted bool) {
	p.scheduler.Post(func() {
		if !granted {
			return
		}
		if err := p.hardware.RestartAudioLayer(); err != nil {
			p.logger.LogError(err, "перезапуск аудиослоя не удался")
		}
	})
}

func (p *Presenter) onVideoEvent(e VideoEvent) {
	if p.finished {
		return
	}
	switch {
	case e.Start:
		p.view.ResetPreviewVideoSize(e.W, e.H, e.Rot)
	case p.conference != nil && e.SinkID == p.conference.ID():
		if e.Started {
			p.view.DisplayPeerVideo(true)
			p.view.ResetVideoSize(e.W, e.H)
		} else {
			p.view.DisplayPeerVideo(false)
		}
	}
}

// Conference возвращает текущую конференцию сессии (для тестов и
// диагностики; может быть nil)
func (p *Presenter) Conference() *conference.Conference {
	done := make(chan *conference.Conference, 1)
	p.scheduler.Post(func() { done <- p.conference })
	select {
	case conf := <-done:
		return conf
	case <-time.After(time.Second):
		return nil
	}
}

// Close освобождает презентер и останавливает его планировщик.
// Нельзя вызывать из задач самого планировщика.
func (p *Presenter) Close() {
	p.scheduler.Post(func() {
		if !p.finished {
			p.finishSession()
		}
	})
	p.scheduler.Close()
}
