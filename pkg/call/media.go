package call

// MediaType тип медиа в описании плеча.
type MediaType int

const (
	MediaTypeAudio MediaType = iota
	MediaTypeVideo
)

func (m MediaType) String() string {
	if m == MediaTypeVideo {
		return "MEDIA_TYPE_VIDEO"
	}
	return "MEDIA_TYPE_AUDIO"
}

// ScreenShareSource — источник видео при демонстрации экрана.
const ScreenShareSource = "camera://desktop"

// Media — одна медиа-позиция плеча, как ее отдает транспортный слой.
type Media struct {
	Type    MediaType
	Label   string
	Source  string
	Enabled bool
	Muted   bool
	OnHold  bool
}

// DefaultAudio возвращает стандартную аудио-позицию нового вызова.
func DefaultAudio() Media {
	return Media{Type: MediaTypeAudio, Label: "audio_0", Enabled: true}
}

// DefaultVideo возвращает стандартную видео-позицию нового вызова.
func DefaultVideo() Media {
	return Media{Type: MediaTypeVideo, Label: "video_0", Source: "camera://default", Enabled: true}
}
