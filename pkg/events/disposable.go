package events

import "sync"

// Disposable представляет отменяемый ресурс: подписку, таймер или
// отложенную задачу. Повторный вызов Dispose безопасен и ничего не делает.
type Disposable interface {
	// Dispose освобождает ресурс. Идемпотентен.
	Dispose()
	// IsDisposed возвращает true, если ресурс уже освобожден.
	IsDisposed() bool
}

// disposer — базовая реализация Disposable поверх функции освобождения.
type disposer struct {
	mu       sync.Mutex
	disposed bool
	release  func()
}

// NewDisposable создает Disposable, вызывающий release ровно один раз.
func NewDisposable(release func()) Disposable {
	return &disposer{release: release}
}

func (d *disposer) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	release := d.release
	d.release = nil
	d.mu.Unlock()

	if release != nil {
		release()
	}
}

func (d *disposer) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// Bag собирает Disposable одной сессии и освобождает их как одно
// атомарное действие. После Dispose бэг закрыт: всё, что добавляется
// в него позже, освобождается немедленно. Это гарантирует, что поздняя
// подписка разорванной сессии не переживет саму сессию.
type Bag struct {
	mu       sync.Mutex
	disposed bool
	items    []Disposable
}

// Add добавляет ресурс в бэг. Если бэг уже освобожден,
// ресурс освобождается сразу же.
func (b *Bag) Add(d Disposable) {
	if d == nil {
		return
	}
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		d.Dispose()
		return
	}
	b.items = append(b.items, d)
	b.mu.Unlock()
}

// Dispose освобождает все собранные ресурсы и закрывает бэг.
func (b *Bag) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	items := b.items
	b.items = nil
	b.mu.Unlock()

	for _, d := range items {
		d.Dispose()
	}
}

// IsDisposed возвращает true, если бэг уже закрыт.
func (b *Bag) IsDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}
