package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/session"
)

// SIPConfig конфигурация SIP транспорта
type SIPConfig struct {
	UserAgent string
	AccountID string

	// Username имя пользователя в Contact заголовке
	Username string

	// ListenAddr и Port локальный адрес SIP сервера
	ListenAddr string
	Port       int

	// Protocol транспортный протокол: udp или tcp
	Protocol string

	// AudioPort и VideoPort локальные медиапорты для SDP
	AudioPort int
	VideoPort int
}

// DefaultSIPConfig возвращает конфигурацию по умолчанию
func DefaultSIPConfig() *SIPConfig {
	return &SIPConfig{
		UserAgent:  "call_session/1.0",
		AccountID:  "default",
		Username:   "softcall",
		ListenAddr: "127.0.0.1",
		Port:       5060,
		Protocol:   "udp",
		AudioPort:  10000,
		VideoPort:  10002,
	}
}

// sipDialog состояние одного SIP диалога, привязанного к ноге вызова
type sipDialog struct {
	invite   *sip.Request
	response *sip.Response
	serverTx sip.ServerTransaction
	remote   sip.Uri
	incoming bool
}

// SIPTransport — SIP сторона сервиса вызовов.
//
// Состоит из UserAgent, сервера и клиента sipgo. Входящие INVITE
// превращаются в ноги сервиса, ответы на исходящие INVITE двигают
// состояния ног.
type SIPTransport struct {
	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client

	cfg     *SIPConfig
	service *Service
	logger  session.StructuredLogger
	sdp     *SDPBuilder

	contact sip.ContactHeader

	mu      sync.Mutex
	dialogs map[string]*sipDialog // legID -> диалог

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSIPTransport создает SIP транспорт поверх сервиса вызовов
func NewSIPTransport(cfg *SIPConfig, service *Service, logger session.StructuredLogger) (*SIPTransport, error) {
	if cfg == nil {
		cfg = DefaultSIPConfig()
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(cfg.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("создание UA: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("создание сервера: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		return nil, fmt.Errorf("создание клиента: %w", err)
	}

	t := &SIPTransport{
		ua:      ua,
		server:  server,
		client:  client,
		cfg:     cfg,
		service: service,
		logger:  logger.WithComponent("sip"),
		sdp:     NewSDPBuilder(),
		dialogs: make(map[string]*sipDialog),
		contact: sip.ContactHeader{
			Address: sip.Uri{
				Scheme: "sip",
				User:   cfg.Username,
				Host:   cfg.ListenAddr,
				Port:   cfg.Port,
			},
		},
	}
	t.setupHandlers()
	return t, nil
}

// Start запускает SIP сервер
func (t *SIPTransport) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)
	listenAddr := fmt.Sprintf("%s:%d", t.cfg.ListenAddr, t.cfg.Port)

	t.logger.Info("запуск SIP сервера",
		session.String("addr", listenAddr),
		session.String("protocol", t.cfg.Protocol),
	)

	go func() {
		if err := t.server.ListenAndServe(t.ctx, t.cfg.Protocol, listenAddr); err != nil {
			t.logger.LogError(err, "сервер SIP остановился")
		}
	}()
	return nil
}

func (t *SIPTransport) setupHandlers() {
	t.server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) {
		t.handleInvite(req, tx)
	})
	t.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {
		// Диалог подтвержден, состояние уже CURRENT
	})
	t.server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) {
		t.handleBye(req, tx)
	})
	t.server.OnCancel(func(req *sip.Request, tx sip.ServerTransaction) {
		t.handleCancel(req, tx)
	})
}

func (t *SIPTransport) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()
	from := req.From()
	contactURI := call.URI(fmt.Sprintf("%s@%s", from.Address.User, from.Address.Host))

	details := map[string]string{}
	if len(req.Body()) > 0 {
		if offer, err := Parse(req.Body()); err == nil {
			if codec := AudioCodec(offer); codec != "" {
				details[call.DetailAudioCodec] = codec
			}
		}
	}

	leg := t.service.NewIncomingCall(t.cfg.AccountID, contactURI, details)

	t.mu.Lock()
	t.dialogs[leg.DaemonID()] = &sipDialog{
		invite:   req,
		serverTx: tx,
		remote:   from.Address,
		incoming: true,
	}
	t.mu.Unlock()

	t.logger.Info("входящий INVITE",
		session.String("sip_call_id", callID),
		session.String("call_id", leg.DaemonID()),
		session.String("from", string(contactURI)),
	)

	ringing := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	ringing.AppendHeader(&t.contact)
	if err := tx.Respond(ringing); err != nil {
		t.logger.LogError(err, "отправка 180 не удалась")
	}
}

func (t *SIPTransport) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	legID := t.findLegBySIPCallID(req.CallID().Value())
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(resp); err != nil {
		t.logger.LogError(err, "ответ на BYE не удался")
	}
	if legID != "" {
		t.dropDialog(legID)
		t.service.UpdateCallState(legID, "HUNGUP", nil)
	}
}

func (t *SIPTransport) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	legID := t.findLegBySIPCallID(req.CallID().Value())
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(resp); err != nil {
		t.logger.LogError(err, "ответ на CANCEL не удался")
	}
	if legID != "" {
		t.dropDialog(legID)
		t.service.UpdateCallState(legID, "HUNGUP", nil)
	}
}

// Invite отправляет исходящий INVITE для ноги и следит за ответами
func (t *SIPTransport) Invite(leg *call.Call, withVideo bool) error {
	var target sip.Uri
	if err := sip.ParseUri("sip:"+string(leg.ContactURI()), &target); err != nil {
		return fmt.Errorf("разбор адреса %s: %w", leg.ContactURI(), err)
	}

	offer, err := t.sdp.BuildOffer(t.cfg.ListenAddr, t.cfg.AudioPort, t.cfg.VideoPort, withVideo)
	if err != nil {
		return fmt.Errorf("построение offer: %w", err)
	}
	body, err := offer.Marshal()
	if err != nil {
		return fmt.Errorf("сериализация offer: %w", err)
	}

	invite := sip.NewRequest(sip.INVITE, target)
	invite.AppendHeader(&t.contact)
	invite.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	invite.SetBody(body)

	t.mu.Lock()
	t.dialogs[leg.DaemonID()] = &sipDialog{invite: invite, remote: target}
	t.mu.Unlock()

	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := t.client.TransactionRequest(ctx, invite)
	if err != nil {
		t.dropDialog(leg.DaemonID())
		return fmt.Errorf("отправка INVITE: %w", err)
	}

	go t.watchResponses(leg.DaemonID(), invite, tx)
	return nil
}

// watchResponses транслирует ответы на INVITE в состояния ноги
func (t *SIPTransport) watchResponses(legID string, invite *sip.Request, tx sip.ClientTransaction) {
	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return
			}
			switch {
			case res.StatusCode == 180 || res.StatusCode == 183:
				t.service.UpdateCallState(legID, "RINGING", nil)
			case res.StatusCode >= 200 && res.StatusCode < 300:
				t.confirmDialog(legID, invite, res)
				details := map[string]string{}
				if answer, err := Parse(res.Body()); err == nil {
					if codec := AudioCodec(answer); codec != "" {
						details[call.DetailAudioCodec] = codec
					}
				}
				t.service.UpdateCallState(legID, "CURRENT", details)
				return
			case res.StatusCode == 486 || res.StatusCode == 600:
				t.dropDialog(legID)
				t.service.UpdateCallState(legID, "BUSY", nil)
				return
			case res.StatusCode >= 400:
				t.dropDialog(legID)
				t.service.UpdateCallState(legID, "FAILURE", nil)
				return
			}
		case <-tx.Done():
			return
		}
	}
}

// confirmDialog подтверждает установленный диалог ACK запросом
func (t *SIPTransport) confirmDialog(legID string, invite *sip.Request, res *sip.Response) {
	t.mu.Lock()
	if d, ok := t.dialogs[legID]; ok {
		d.response = res
	}
	t.mu.Unlock()

	if err := t.client.WriteRequest(buildAck(invite, res)); err != nil {
		t.logger.LogError(err, "отправка ACK не удалась", session.String("call_id", legID))
	}
}

// buildAck собирает ACK для 2xx ответа на INVITE: Request-URI из Contact
// ответа, From и CSeq номер из INVITE, To с remote tag из ответа.
func buildAck(invite *sip.Request, res *sip.Response) *sip.Request {
	target := invite.Recipient
	if contact := res.Contact(); contact != nil {
		target = contact.Address
	}
	ack := sip.NewRequest(sip.ACK, target)
	ack.AppendHeader(sip.NewHeader("Call-ID", invite.CallID().Value()))
	ack.AppendHeader(invite.From())
	ack.AppendHeader(res.To())
	if cseq := invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}
	ack.AppendHeader(sip.NewHeader("Max-Forwards", "70"))
	return ack
}

// Accept отвечает 200 OK на входящий INVITE
func (t *SIPTransport) Accept(legID string, withVideo bool) error {
	d := t.dialog(legID)
	if d == nil || !d.incoming {
		return fmt.Errorf("входящий диалог %s не найден", legID)
	}

	var body []byte
	if len(d.invite.Body()) > 0 {
		offer, err := Parse(d.invite.Body())
		if err != nil {
			return fmt.Errorf("разбор offer: %w", err)
		}
		answer, err := t.sdp.BuildAnswer(offer, t.cfg.ListenAddr, t.cfg.AudioPort, t.cfg.VideoPort)
		if err != nil {
			return fmt.Errorf("построение answer: %w", err)
		}
		body, err = answer.Marshal()
		if err != nil {
			return fmt.Errorf("сериализация answer: %w", err)
		}
	}

	resp := sip.NewResponseFromRequest(d.invite, 200, "OK", body)
	resp.AppendHeader(&t.contact)
	if body != nil {
		resp.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	}
	return d.serverTx.Respond(resp)
}

// Reject отвечает отказом на входящий INVITE
func (t *SIPTransport) Reject(legID string) error {
	d := t.dialog(legID)
	if d == nil || !d.incoming {
		return fmt.Errorf("входящий диалог %s не найден", legID)
	}
	resp := sip.NewResponseFromRequest(d.invite, 486, "Busy Here", nil)
	err := d.serverTx.Respond(resp)
	t.dropDialog(legID)
	return err
}

// Bye завершает установленный диалог
func (t *SIPTransport) Bye(legID string) error {
	d := t.dialog(legID)
	if d == nil {
		return nil
	}
	t.dropDialog(legID)

	bye := sip.NewRequest(sip.BYE, d.remote)
	bye.AppendHeader(sip.NewHeader("Call-ID", d.invite.CallID().Value()))

	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := t.client.TransactionRequest(ctx, bye)
	if err != nil {
		return fmt.Errorf("отправка BYE: %w", err)
	}
	go func() {
		select {
		case <-tx.Responses():
		case <-tx.Done():
		}
	}()
	return nil
}

// Close останавливает транспорт
func (t *SIPTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.server != nil {
		_ = t.server.Close()
	}
	if t.client != nil {
		_ = t.client.Close()
	}
	if t.ua != nil {
		_ = t.ua.Close()
	}
	return nil
}

func (t *SIPTransport) dialog(legID string) *sipDialog {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialogs[legID]
}

func (t *SIPTransport) dropDialog(legID string) {
	t.mu.Lock()
	delete(t.dialogs, legID)
	t.mu.Unlock()
}

func (t *SIPTransport) findLegBySIPCallID(sipCallID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for legID, d := range t.dialogs {
		if d.invite != nil && d.invite.CallID().Value() == sipCallID {
			return legID
		}
	}
	return ""
}
