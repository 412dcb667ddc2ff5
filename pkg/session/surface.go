package session

import (
	"sync"

	"github.com/arzzra/call_session/pkg/conference"
)

// SurfaceRole роль видеоповерхности в сессии
type SurfaceRole int

const (
	RoleMain SurfaceRole = iota
	RolePlugin
	RolePreview
)

// SurfaceRegistry отслеживает привязку видеоповерхностей к sink ID.
// Гарантирует ровно одну привязку на роль: повторный Attach с тем же ID
// не создает дубликата, смена ID снимает старую привязку.
type SurfaceRegistry struct {
	mu       sync.Mutex
	hardware HardwareService
	logger   StructuredLogger

	sinkIDs map[SurfaceRole]string
	holders map[SurfaceRole]interface{}
}

// NewSurfaceRegistry создает реестр поверхностей
func NewSurfaceRegistry(hardware HardwareService, logger StructuredLogger) *SurfaceRegistry {
	return &SurfaceRegistry{
		hardware: hardware,
		logger:   logger.WithComponent("surfaces"),
		sinkIDs:  make(map[SurfaceRole]string),
		holders:  make(map[SurfaceRole]interface{}),
	}
}

// Attach привязывает поверхность к sink ID для роли.
// Если роль уже привязана к этому же ID, вызов игнорируется.
// Если привязана к другому ID, старая привязка снимается.
func (r *SurfaceRegistry) Attach(role SurfaceRole, sinkID string, holder interface{}, conf *conference.Conference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sinkIDs[role]; ok {
		if old == sinkID {
			return nil
		}
		r.detachLocked(role, old)
	}

	var err error
	if role == RolePreview {
		err = r.hardware.AddPreviewVideoSurface(holder, conf)
	} else {
		err = r.hardware.AddVideoSurface(sinkID, holder)
	}
	if err != nil {
		return err
	}

	r.sinkIDs[role] = sinkID
	r.holders[role] = holder
	r.logger.Debug("поверхность привязана", String("sink_id", sinkID), Int("role", int(role)))
	return nil
}

// UpdateID перепривязывает роль на новый sink ID без пересоздания поверхности.
// Если ID не изменился, ничего не делает.
func (r *SurfaceRegistry) UpdateID(role SurfaceRole, newSinkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sinkIDs[role]
	if !ok || old == newSinkID {
		return nil
	}
	if role == RolePreview {
		r.sinkIDs[role] = newSinkID
		return nil
	}
	if err := r.hardware.UpdateVideoSurfaceID(old, newSinkID); err != nil {
		return err
	}
	r.sinkIDs[role] = newSinkID
	r.logger.Debug("sink ID обновлен", String("old", old), String("new", newSinkID))
	return nil
}

// Release снимает привязку роли. Безусловно и идемпотентно:
// повторный вызов для отвязанной роли безопасен.
func (r *SurfaceRegistry) Release(role SurfaceRole) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinkID, ok := r.sinkIDs[role]
	if !ok {
		// UI может отзывать поверхность после завершения сессии
		if role == RolePreview {
			_ = r.hardware.RemovePreviewVideoSurface()
		}
		return
	}
	r.detachLocked(role, sinkID)
}

// ReleaseAll снимает все привязки, вызывается при завершении сессии
func (r *SurfaceRegistry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for role, sinkID := range r.sinkIDs {
		r.detachLocked(role, sinkID)
	}
}

// SinkID возвращает текущий sink ID роли
func (r *SurfaceRegistry) SinkID(role SurfaceRole) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.sinkIDs[role]
	return id, ok
}

func (r *SurfaceRegistry) detachLocked(role SurfaceRole, sinkID string) {
	if role == RolePreview {
		if err := r.hardware.RemovePreviewVideoSurface(); err != nil {
			r.logger.Warn("ошибка отвязки превью", Err(err))
		}
	} else {
		if err := r.hardware.RemoveVideoSurface(sinkID); err != nil {
			r.logger.Warn("ошибка отвязки поверхности", String("sink_id", sinkID), Err(err))
		}
	}
	delete(r.sinkIDs, role)
	delete(r.holders, role)
}
