package daemon

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// SDPBuilder создает и разбирает SDP описания для ног вызова
type SDPBuilder struct {
	sessionVersion uint64
}

// NewSDPBuilder создает новый SDPBuilder
func NewSDPBuilder() *SDPBuilder {
	return &SDPBuilder{
		sessionVersion: uint64(time.Now().Unix()),
	}
}

// BuildOffer создает SDP offer с аудио и, при необходимости, видео секцией
func (b *SDPBuilder) BuildOffer(localIP string, audioPort, videoPort int, withVideo bool) (*sdp.SessionDescription, error) {
	b.sessionVersion++

	desc, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания базового SDP: %w", err)
	}

	desc.Origin = sdp.Origin{
		Username:       "-",
		SessionID:      b.sessionVersion,
		SessionVersion: b.sessionVersion,
		NetworkType:    "IN",
		AddressType:    "IP4",
		UnicastAddress: localIP,
	}
	desc.SessionName = "call_session"
	desc.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: localIP},
	}
	desc.TimeDescriptions = []sdp.TimeDescription{
		{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
	}

	desc = desc.WithMedia(b.audioMedia(localIP, audioPort))
	if withVideo {
		desc = desc.WithMedia(b.videoMedia(localIP, videoPort))
	}
	return desc, nil
}

// BuildAnswer создает SDP answer, зеркалируя медиа секции offer
func (b *SDPBuilder) BuildAnswer(offer *sdp.SessionDescription, localIP string, audioPort, videoPort int) (*sdp.SessionDescription, error) {
	if offer == nil {
		return nil, fmt.Errorf("offer не может быть nil")
	}
	return b.BuildOffer(localIP, audioPort, videoPort, HasVideo(offer))
}

func (b *SDPBuilder) audioMedia(localIP string, port int) *sdp.MediaDescription {
	media := sdp.NewJSEPMediaDescription("audio", []string{})
	media.MediaName = sdp.MediaName{
		Media:   "audio",
		Port:    sdp.RangedPort{Value: port},
		Protos:  []string{"RTP", "AVP"},
		Formats: []string{"0", "8", "9"}, // PCMU, PCMA, G722
	}
	media.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: localIP},
	}
	media = media.WithCodec(0, "PCMU", 8000, 0, "")
	media = media.WithCodec(8, "PCMA", 8000, 0, "")
	media = media.WithCodec(9, "G722", 8000, 0, "")
	media = media.WithPropertyAttribute("sendrecv")
	return media
}

func (b *SDPBuilder) videoMedia(localIP string, port int) *sdp.MediaDescription {
	media := sdp.NewJSEPMediaDescription("video", []string{})
	media.MediaName = sdp.MediaName{
		Media:   "video",
		Port:    sdp.RangedPort{Value: port},
		Protos:  []string{"RTP", "AVP"},
		Formats: []string{"96"},
	}
	media.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: localIP},
	}
	media = media.WithCodec(96, "VP8", 90000, 0, "")
	media = media.WithPropertyAttribute("sendrecv")
	return media
}

// Marshal сериализует SDP в тело запроса
func Marshal(desc *sdp.SessionDescription) ([]byte, error) {
	return desc.Marshal()
}

// Parse разбирает SDP из тела запроса
func Parse(body []byte) (*sdp.SessionDescription, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("ошибка разбора SDP: %w", err)
	}
	return desc, nil
}

// HasVideo возвращает true, если в описании есть видео секция
// с ненулевым портом
func HasVideo(desc *sdp.SessionDescription) bool {
	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media == "video" && media.MediaName.Port.Value > 0 {
			return true
		}
	}
	return false
}

// AudioCodec возвращает имя первого аудиокодека из описания
func AudioCodec(desc *sdp.SessionDescription) string {
	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media != "audio" || len(media.MediaName.Formats) == 0 {
			continue
		}
		pt, err := strconv.Atoi(media.MediaName.Formats[0])
		if err != nil {
			return ""
		}
		codec, err := desc.GetCodecForPayloadType(uint8(pt))
		if err != nil {
			return ""
		}
		return codec.Name
	}
	return ""
}
