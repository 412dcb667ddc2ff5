package session

import (
	"sync"
	"time"

	"github.com/arzzra/call_session/pkg/call"
	"github.com/arzzra/call_session/pkg/conference"
	"github.com/arzzra/call_session/pkg/events"
)

// --- CallService mock ---

type placedCall struct {
	accountID  string
	contactURI call.URI
	withVideo  bool
}

type mergeOp struct {
	kind string // add, join, join_conf
	a, b string
}

type mockCallService struct {
	mu sync.Mutex

	confSubjects map[string]*events.Subject[*conference.Conference]
	callSubjects map[string]*events.Subject[*call.Call]

	placeErr   error
	placedLegs []*call.Call
	placed     []placedCall

	accepted  []string
	refused   []string
	hangups   []string
	confHangs []string
	unholds   []string
	holds     []string
	addMain   []string
	merges    []mergeOp
	dtmf      []string

	videoRequests []bool
	audioMutes    []bool
	maximized     []call.URI
	gridLayouts   int

	conferences []*conference.Conference
}

func newMockCallService() *mockCallService {
	return &mockCallService{
		confSubjects: make(map[string]*events.Subject[*conference.Conference]),
		callSubjects: make(map[string]*events.Subject[*call.Call]),
	}
}

func (m *mockCallService) confSubject(id string) *events.Subject[*conference.Conference] {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.confSubjects[id]
	if !ok {
		s = events.NewReplaySubject[*conference.Conference]()
		m.confSubjects[id] = s
	}
	return s
}

func (m *mockCallService) callSubject(id string) *events.Subject[*call.Call] {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.callSubjects[id]
	if !ok {
		s = events.NewReplaySubject[*call.Call]()
		m.callSubjects[id] = s
	}
	return s
}

func (m *mockCallService) PlaceCall(accountID string, conversationURI, targetURI call.URI, withVideo bool) (*call.Call, error) {
	m.mu.Lock()
	if m.placeErr != nil {
		err := m.placeErr
		m.mu.Unlock()
		return nil, err
	}
	id := "placed-" + targetURI.String()
	leg := call.New(id, accountID, targetURI, conversationURI, call.DirectionOutgoing, withVideo)
	m.placedLegs = append(m.placedLegs, leg)
	m.placed = append(m.placed, placedCall{accountID, targetURI, withVideo})
	m.mu.Unlock()
	return leg, nil
}

func (m *mockCallService) CallUpdates(c *call.Call) events.Observable[*call.Call] {
	return m.callSubject(c.DaemonID())
}

func (m *mockCallService) ConfUpdates(confID string) events.Observable[*conference.Conference] {
	return m.confSubject(confID)
}

func (m *mockCallService) Accept(accountID, callID string, withVideo bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, callID)
	return nil
}

func (m *mockCallService) Refuse(accountID, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refused = append(m.refused, callID)
	return nil
}

func (m *mockCallService) HangUp(accountID, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangups = append(m.hangups, callID)
	return nil
}

func (m *mockCallService) HangUpConference(accountID, confID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confHangs = append(m.confHangs, confID)
	return nil
}

func (m *mockCallService) Unhold(accountID, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unholds = append(m.unholds, callID)
	return nil
}

func (m *mockCallService) Hold(accountID, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds = append(m.holds, callID)
	return nil
}

func (m *mockCallService) AddMainParticipant(accountID, confID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addMain = append(m.addMain, confID)
	return nil
}

func (m *mockCallService) AddParticipant(accountID, callID, destAccountID, destConfID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, mergeOp{"add", callID, destConfID})
	return nil
}

func (m *mockCallService) JoinParticipant(accountID, callID, destAccountID, destCallID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, mergeOp{"join", callID, destCallID})
	return nil
}

func (m *mockCallService) JoinConference(accountID, confID, destAccountID, destConfID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, mergeOp{"join_conf", confID, destConfID})
	return nil
}

func (m *mockCallService) RequestVideoMedia(conf *conference.Conference, enable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoRequests = append(m.videoRequests, enable)
	return nil
}

func (m *mockCallService) MuteLocalAudio(conf *conference.Conference, mute bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioMutes = append(m.audioMutes, mute)
	return nil
}

func (m *mockCallService) HangupParticipant(accountID, confID, peerURI, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangups = append(m.hangups, peerURI)
	return nil
}

func (m *mockCallService) MuteParticipant(accountID, confID, peerURI, deviceID string, mute bool) error {
	return nil
}

func (m *mockCallService) RaiseHand(accountID, confID, peerURI, deviceID string, raise bool) error {
	return nil
}

func (m *mockCallService) SetConfMaximizedParticipant(accountID, confID string, peerURI call.URI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maximized = append(m.maximized, peerURI)
	return nil
}

func (m *mockCallService) SetConfGridLayout(accountID, confID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gridLayouts++
	return nil
}

func (m *mockCallService) PlayDTMF(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtmf = append(m.dtmf, key)
	return nil
}

func (m *mockCallService) CurrentConferences() []*conference.Conference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conferences
}

func (m *mockCallService) HoldCallOrConference(conf *conference.Conference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds = append(m.holds, conf.ID())
	return nil
}

var _ CallService = (*mockCallService)(nil)

// --- HardwareService mock ---

type mockHardware struct {
	mu sync.Mutex

	hasCamera      bool
	cameraCnt      int
	videoAvailable bool
	speakerOn      bool

	previewSettings int
	previewUpdates  int
	surfacesAdded   []string
	surfacesRemoved []string
	idUpdates       [][2]string
	previewAdds     int
	previewRemoves  int
	inputSwitches   int
	audioRestarts   int

	cameraEvents *events.Subject[VideoEvent]
	audioState   *events.Subject[AudioState]
}

func newMockHardware() *mockHardware {
	return &mockHardware{
		hasCamera:      true,
		cameraCnt:      1,
		videoAvailable: true,
		cameraEvents:   events.NewSubject[VideoEvent](),
		audioState:     events.NewSubject[AudioState](),
	}
}

func (m *mockHardware) HasCamera() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasCamera
}

func (m *mockHardware) CameraCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cameraCnt
}

func (m *mockHardware) HasMicrophone() bool      { return true }
func (m *mockHardware) IsVideoAvailable() bool   { return m.videoAvailable }
func (m *mockHardware) HasVideoPermission() bool { return true }
func (m *mockHardware) InitVideo() error         { return nil }

func (m *mockHardware) SetPreviewSettings() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previewSettings++
}

func (m *mockHardware) UpdatePreviewVideoSurface(*conference.Conference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previewUpdates++
	return nil
}

func (m *mockHardware) AddVideoSurface(sinkID string, holder interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surfacesAdded = append(m.surfacesAdded, sinkID)
	return nil
}

func (m *mockHardware) UpdateVideoSurfaceID(oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idUpdates = append(m.idUpdates, [2]string{oldID, newID})
	return nil
}

func (m *mockHardware) RemoveVideoSurface(sinkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surfacesRemoved = append(m.surfacesRemoved, sinkID)
	return nil
}

func (m *mockHardware) AddPreviewVideoSurface(holder interface{}, conf *conference.Conference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previewAdds++
	return nil
}

func (m *mockHardware) RemovePreviewVideoSurface() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previewRemoves++
	return nil
}

func (m *mockHardware) SwitchInput(accountID, confID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputSwitches++
	return nil
}

func (m *mockHardware) ToggleSpeakerphone() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakerOn = !m.speakerOn
	return nil
}

func (m *mockHardware) IsSpeakerphoneOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speakerOn
}

func (m *mockHardware) CameraEvents() events.Observable[VideoEvent] { return m.cameraEvents }
func (m *mockHardware) AudioState() events.Observable[AudioState]   { return m.audioState }

func (m *mockHardware) RestartAudioLayer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioRestarts++
	return nil
}

var _ HardwareService = (*mockHardware)(nil)

// --- AccountService mock ---

type mockAccounts struct {
	autoAnswer bool
}

func (m *mockAccounts) GetAccount(accountID string) (*Account, error) {
	return &Account{
		ID:                accountID,
		URI:               "self@example.com",
		Username:          "self",
		DeviceID:          "device-1",
		AutoAnswerEnabled: m.autoAnswer,
	}, nil
}

var _ AccountService = (*mockAccounts)(nil)

// --- ConversationService mock ---

type mockConversations struct {
	mu      sync.Mutex
	current map[call.URI]*conference.Conference
	started []call.URI
}

func newMockConversations() *mockConversations {
	return &mockConversations{current: make(map[call.URI]*conference.Conference)}
}

func (m *mockConversations) StartConversation(accountID string, contactURI call.URI) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, contactURI)
	return &Conversation{
		AccountID:   accountID,
		URI:         contactURI,
		ContactURI:  contactURI,
		CurrentCall: m.current[contactURI],
	}, nil
}

func (m *mockConversations) GetContact(accountID string, contactURI call.URI) (*conference.Contact, error) {
	return &conference.Contact{URI: contactURI, DisplayName: string(contactURI)}, nil
}

var _ ConversationService = (*mockConversations)(nil)

// --- CallView mock ---

type mockView struct {
	mu sync.Mutex

	finished         int
	prepared         []bool
	normalDisplays   int
	incomingDisplays int
	outgoingDisplays int
	statuses         []call.Status
	confInfos        [][]conference.ParticipantInfo
	times            []int64
	buttons          []BottomSheetButtonStatus
	localVideo       []bool
	peerVideo        []bool
	pipRequests      []string
	wakelocks        []bool
	hangupButtons    []bool
	conversations    []call.URI
	recordings       [][]conference.Contact
}

func (v *mockView) UpdateConfInfo(participants []conference.ParticipantInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confInfos = append(v.confInfos, participants)
}

func (v *mockView) UpdateParticipantRecording(contacts []conference.Contact) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recordings = append(v.recordings, contacts)
}

func (v *mockView) InitNormalStateDisplay() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.normalDisplays++
}

func (v *mockView) InitIncomingCallDisplay(hasVideo bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.incomingDisplays++
}

func (v *mockView) InitOutGoingCallDisplay(hasVideo bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.outgoingDisplays++
}

func (v *mockView) UpdateCallStatus(status call.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, status)
}

func (v *mockView) UpdateTime(seconds int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.times = append(v.times, seconds)
}

func (v *mockView) UpdateBottomSheetButtonStatus(status BottomSheetButtonStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buttons = append(v.buttons, status)
}

func (v *mockView) DisplayLocalVideo(display bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.localVideo = append(v.localVideo, display)
}

func (v *mockView) DisplayPeerVideo(display bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.peerVideo = append(v.peerVideo, display)
}

func (v *mockView) ResetPreviewVideoSize(width, height, rot int) {}
func (v *mockView) ResetVideoSize(width, height int)             {}
func (v *mockView) UpdateAudioState(state AudioState)            {}

func (v *mockView) PrepareCall(incoming bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prepared = append(v.prepared, incoming)
}

func (v *mockView) HandleCallWakelock(isAudioOnly bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.wakelocks = append(v.wakelocks, isAudioOnly)
}

func (v *mockView) DisplayHangupButton(display bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hangupButtons = append(v.hangupButtons, display)
}

func (v *mockView) DisplayDialPadKeyboard() {}

func (v *mockView) GoToConversation(accountID string, conversationURI call.URI) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conversations = append(v.conversations, conversationURI)
}

func (v *mockView) StartAddParticipant(accountID, confID string) {}

func (v *mockView) EnterPipMode(accountID, callID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pipRequests = append(v.pipRequests, callID)
}

func (v *mockView) Finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finished++
}

func (v *mockView) finishCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finished
}

var _ CallView = (*mockView)(nil)

// --- helpers ---

type testEnv struct {
	calls         *mockCallService
	hardware      *mockHardware
	accounts      *mockAccounts
	conversations *mockConversations
	view          *mockView
	presenter     *Presenter
}

func newTestEnv() *testEnv {
	env := &testEnv{
		calls:         newMockCallService(),
		hardware:      newMockHardware(),
		accounts:      &mockAccounts{},
		conversations: newMockConversations(),
		view:          &mockView{},
	}
	env.presenter = New(env.calls, env.hardware, env.accounts, env.conversations, env.view, &Config{
		JoinGracePeriod:    10 * time.Millisecond,
		TimeUpdateInterval: 50 * time.Millisecond,
		Logger:             NoOpLogger{},
	})
	return env
}

// sync дожидается выполнения всех поставленных задач презентера
func (env *testEnv) sync() {
	done := make(chan struct{})
	env.presenter.scheduler.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func newRingingLeg(id string, direction call.Direction, withVideo bool) *call.Call {
	leg := call.New(id, "acc-1", "peer@example.com", "swarm:conv", direction, withVideo)
	_ = leg.SetStatus(call.StatusRinging)
	return leg
}

func newOngoingLeg(id string, direction call.Direction, withVideo bool) *call.Call {
	leg := newRingingLeg(id, direction, withVideo)
	_ = leg.SetStatus(call.StatusCurrent)
	return leg
}
