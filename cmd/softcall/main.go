package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
	"github.com/arzzra/call_session/pkg/daemon"
	"github.com/arzzra/call_session/pkg/events"
	"github.com/arzzra/call_session/pkg/session"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1", "SIP listen address")
		port       = flag.Int("port", 5060, "SIP listen port")
		username   = flag.String("user", "softcall", "Username")
		mode       = flag.String("mode", "server", "Mode: server, call")
		target     = flag.String("target", "bob@127.0.0.1:5061", "Target for outgoing call")
		withVideo  = flag.Bool("video", false, "Request video media")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	logger := session.NewDefaultLogger()
	if *debug {
		logger.SetLevel(session.LogLevelDebug)
	}

	svc, err := daemon.NewService(&daemon.Config{
		Logger: logger,
		SIP: &daemon.SIPConfig{
			UserAgent:  "call_session/1.0",
			AccountID:  "local",
			Username:   *username,
			ListenAddr: *listenAddr,
			Port:       *port,
			Protocol:   "udp",
			AudioPort:  10000,
			VideoPort:  10002,
		},
	})
	if err != nil {
		log.Fatalf("создание сервиса: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.SIP().Start(ctx); err != nil {
		log.Fatalf("запуск SIP: %v", err)
	}

	view := &consoleView{}
	presenter := session.New(svc, &stubHardware{}, &staticAccounts{username: *username},
		&staticConversations{}, view, &session.Config{
			JoinGracePeriod:    time.Second,
			TimeUpdateInterval: time.Second,
			Logger:             logger,
		})

	if *mode == "call" {
		presenter.InitOutgoing("local", "", call.URI(*target), *withVideo)
	} else {
		fmt.Printf("ожидание входящих вызовов на %s:%d\n", *listenAddr, *port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	presenter.Close()
	if err := svc.Close(); err != nil {
		log.Printf("остановка сервиса: %v", err)
	}
}

// consoleView печатает события сессии в stdout
type consoleView struct{}

var _ session.CallView = (*consoleView)(nil)

func (v *consoleView) UpdateConfInfo(participants []conference.ParticipantInfo) {
	fmt.Printf("участники: %d\n", len(participants))
	for _, p := range participants {
		marker := ""
		if p.Pending {
			marker = " (присоединяется)"
		}
		fmt.Printf("  %s%s\n", p.Contact.URI, marker)
	}
}

func (v *consoleView) UpdateParticipantRecording(contacts []conference.Contact) {
	for _, c := range contacts {
		fmt.Printf("запись ведет: %s\n", c.URI)
	}
}

func (v *consoleView) InitNormalStateDisplay() { fmt.Println("== разговор ==") }
func (v *consoleView) InitIncomingCallDisplay(video bool) {
	fmt.Println("== входящий вызов ==")
}
func (v *consoleView) InitOutGoingCallDisplay(video bool) {
	fmt.Println("== исходящий вызов ==")
}
func (v *consoleView) UpdateCallStatus(status call.Status) { fmt.Printf("статус: %s\n", status) }

func (v *consoleView) UpdateTime(seconds int64) {
	if seconds >= 0 {
		fmt.Printf("\rдлительность: %02d:%02d", seconds/60, seconds%60)
	}
}

func (v *consoleView) UpdateBottomSheetButtonStatus(session.BottomSheetButtonStatus) {}
func (v *consoleView) DisplayLocalVideo(bool)                                        {}
func (v *consoleView) DisplayPeerVideo(bool)                                         {}
func (v *consoleView) ResetPreviewVideoSize(int, int, int)                           {}
func (v *consoleView) ResetVideoSize(int, int)                                       {}
func (v *consoleView) UpdateAudioState(session.AudioState)                           {}
func (v *consoleView) PrepareCall(incoming bool)                                     {}
func (v *consoleView) HandleCallWakelock(bool)                                       {}
func (v *consoleView) DisplayHangupButton(bool)                                      {}
func (v *consoleView) DisplayDialPadKeyboard()                                       {}
func (v *consoleView) GoToConversation(string, call.URI)                             {}
func (v *consoleView) StartAddParticipant(string, string)                            {}
func (v *consoleView) EnterPipMode(string, string)                                   {}
func (v *consoleView) Finish()                                                       { fmt.Println("\nсессия завершена") }

// stubHardware — консольное окружение без камеры и аудиомаршрутизации
type stubHardware struct {
	cameraEvents events.Subject[session.VideoEvent]
	audioState   events.Subject[session.AudioState]
}

var _ session.HardwareService = (*stubHardware)(nil)

func (h *stubHardware) HasCamera() bool          { return false }
func (h *stubHardware) CameraCount() int         { return 0 }
func (h *stubHardware) HasMicrophone() bool      { return true }
func (h *stubHardware) IsVideoAvailable() bool   { return false }
func (h *stubHardware) HasVideoPermission() bool { return false }
func (h *stubHardware) InitVideo() error         { return nil }
func (h *stubHardware) SetPreviewSettings()      {}

func (h *stubHardware) UpdatePreviewVideoSurface(*conference.Conference) error { return nil }
func (h *stubHardware) AddVideoSurface(string, interface{}) error              { return nil }
func (h *stubHardware) UpdateVideoSurfaceID(string, string) error              { return nil }
func (h *stubHardware) RemoveVideoSurface(string) error                        { return nil }
func (h *stubHardware) AddPreviewVideoSurface(interface{}, *conference.Conference) error {
	return nil
}
func (h *stubHardware) RemovePreviewVideoSurface() error { return nil }
func (h *stubHardware) SwitchInput(string, string) error { return nil }
func (h *stubHardware) ToggleSpeakerphone() error        { return nil }
func (h *stubHardware) IsSpeakerphoneOn() bool           { return false }

func (h *stubHardware) CameraEvents() events.Observable[session.VideoEvent] {
	return &h.cameraEvents
}
func (h *stubHardware) AudioState() events.Observable[session.AudioState] {
	return &h.audioState
}
func (h *stubHardware) RestartAudioLayer() error { return nil }

// staticAccounts — один локальный аккаунт без автоответа
type staticAccounts struct {
	username string
}

var _ session.AccountService = (*staticAccounts)(nil)

func (a *staticAccounts) GetAccount(accountID string) (*session.Account, error) {
	return &session.Account{
		ID:       accountID,
		URI:      call.URI(a.username),
		Username: a.username,
		DeviceID: "console",
	}, nil
}

// staticConversations — беседа на каждый контакт без истории
type staticConversations struct{}

var _ session.ConversationService = (*staticConversations)(nil)

func (c *staticConversations) StartConversation(accountID string, contactURI call.URI) (*session.Conversation, error) {
	return &session.Conversation{
		AccountID:  accountID,
		URI:        contactURI,
		ContactURI: contactURI,
	}, nil
}

func (c *staticConversations) GetContact(accountID string, contactURI call.URI) (*conference.Contact, error) {
	return &conference.Contact{URI: contactURI, DisplayName: string(contactURI)}, nil
}
