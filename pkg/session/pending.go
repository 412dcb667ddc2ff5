package session

import (
	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
	"github.com/arzzra/call_session/pkg/events"
)

// AddConferenceParticipant добавляет контакт в текущую конференцию.
//
// Если у контакта уже есть активный разговор, он немедленно сливается
// с текущим. Иначе на контакт размещается новый вызов, который до
// ответа показывается как отложенный участник и вливается в
// конференцию после льготного периода.
func (p *Presenter) AddConferenceParticipant(accountID string, contactURI call.URI) {
	p.scheduler.Post(func() {
		conf := p.conference
		if conf == nil {
			p.logger.LogError(ErrNoActiveConference("add_participant"), "добавление участника без активной конференции")
			return
		}

		conv, err := p.conversations.StartConversation(accountID, contactURI)
		if err != nil {
			serr := ErrConversationFailed(accountID, contactURI, err)
			p.metrics.ErrorOccurred(serr)
			p.logger.LogError(serr, "беседа с контактом недоступна")
			return
		}

		target := conv.CurrentCall
		if target == nil || target.ID() == conf.ID() {
			p.placePendingJoin(conf, conv)
			return
		}
		p.mergeExisting(conf, target)
	})
}

// mergeExisting сливает текущую конференцию с уже идущим разговором
// контакта. Выбор операции зависит от того, кто из двух участников
// слияния уже является конференцией.
func (p *Presenter) mergeExisting(conf, target *conference.Conference) {
	var err error
	switch {
	case conf.IsConference() && target.IsConference():
		err = p.calls.JoinConference(target.AccountID(), target.ID(), conf.AccountID(), conf.ID())
	case conf.IsConference():
		if leg := target.Call(); leg != nil {
			err = p.calls.AddParticipant(leg.AccountID(), leg.DaemonID(), conf.AccountID(), conf.ID())
		}
	case target.IsConference():
		if leg := conf.Call(); leg != nil {
			err = p.calls.AddParticipant(leg.AccountID(), leg.DaemonID(), target.AccountID(), target.ID())
		}
	default:
		legA := conf.Call()
		legB := target.Call()
		if legA != nil && legB != nil {
			err = p.calls.JoinParticipant(legA.AccountID(), legA.DaemonID(), legB.AccountID(), legB.DaemonID())
		}
	}
	if err != nil {
		p.logger.LogError(err, "слияние разговоров не удалось",
			String("conf_id", conf.ID()),
			String("target_id", target.ID()),
		)
	}
}

// placePendingJoin размещает новый вызов на контакт и ведет его до
// вливания в конференцию или до отказа.
func (p *Presenter) placePendingJoin(conf *conference.Conference, conv *Conversation) {
	leg, err := p.calls.PlaceCall(conv.AccountID, conv.URI, conv.ContactURI, false)
	if err != nil {
		serr := ErrPendingPlacementFailed(conv.ContactURI, err)
		p.metrics.ErrorOccurred(serr)
		p.logger.LogError(serr, "вызов отложенного участника не удался")
		return
	}

	contact := conference.Contact{URI: conv.ContactURI}
	if known, cerr := p.conversations.GetContact(conv.AccountID, conv.ContactURI); cerr == nil && known != nil {
		contact = *known
	}
	pendingInfo := conference.NewPendingInfo(leg, contact)

	registered := false
	joined := false
	var disp events.Disposable

	resolve := func() {
		if registered {
			registered = false
			conf.RemovePending(pendingInfo)
			p.metrics.PendingResolved()
		}
	}

	disp = p.calls.CallUpdates(leg).Subscribe(events.ObserveOn(p.scheduler, events.Observer[*call.Call]{
		OnNext: func(c *call.Call) {
			if c.IsOver() {
				resolve()
				if disp != nil {
					disp.Dispose()
				}
				return
			}
			if !registered {
				registered = true
				conf.AddPending(pendingInfo)
				p.metrics.PendingRegistered()
			}
			if c.IsOnGoing() && !joined {
				joined = true
				// Льготный период дает демону время стабилизировать
				// медиапотоки новой ноги перед слиянием.
				p.bag.Add(p.scheduler.ScheduleOnce(p.cfg.JoinGracePeriod, func() {
					resolve()
					p.joinPlacedLeg(c)
				}))
			}
		},
		OnError: func(err error) {
			resolve()
			p.logger.LogError(err, "поток отложенной ноги завершился ошибкой",
				String("call_id", leg.DaemonID()),
			)
		},
	}))
	p.bag.Add(disp)
}

// joinPlacedLeg вливает ответившую ногу в конференцию, актуальную на
// момент слияния: за льготный период она могла смениться.
func (p *Presenter) joinPlacedLeg(leg *call.Call) {
	cur := p.conference
	if cur == nil || p.finished {
		return
	}

	var err error
	if cur.IsConference() {
		err = p.calls.AddParticipant(leg.AccountID(), leg.DaemonID(), cur.AccountID(), cur.ID())
	} else if main := cur.Call(); main != nil {
		err = p.calls.JoinParticipant(main.AccountID(), main.DaemonID(), leg.AccountID(), leg.DaemonID())
	}
	if err != nil {
		serr := ErrConferenceStreamFailed(cur.ID(), err)
		p.metrics.ErrorOccurred(serr)
		p.logger.LogError(serr, "вливание ноги в конференцию не удалось",
			String("call_id", leg.DaemonID()),
		)
	}
}
