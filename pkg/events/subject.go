package events

import "sync"

// Observer принимает события типизированного потока.
// OnError означает терминальное завершение потока: после него
// OnNext больше не вызывается.
type Observer[T any] struct {
	OnNext  func(T)
	OnError func(error)
}

// Observable — источник типизированных событий. Подписка возвращает
// Disposable, отписывающий наблюдателя.
type Observable[T any] interface {
	Subscribe(o Observer[T]) Disposable
}

// Subject — явный диспетчер событий с подписчиками: замена
// reactive-subject. Поддерживает replay-latest семантику (новый
// подписчик немедленно получает последнее значение) и терминальное
// завершение ошибкой или Complete.
//
// Доставка синхронная, в горутине вызывающего Next. Порядок событий
// для одного подписчика совпадает с порядком вызовов Next.
type Subject[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]Observer[T]
	nextID      uint64

	replayLatest bool
	hasLast      bool
	last         T

	done bool
	err  error
}

var _ Observable[int] = (*Subject[int])(nil)

// NewSubject создает subject без replay: подписчик видит только
// события, пришедшие после подписки.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{subscribers: make(map[uint64]Observer[T])}
}

// NewReplaySubject создает subject с replay-latest семантикой.
func NewReplaySubject[T any]() *Subject[T] {
	return &Subject[T]{
		subscribers:  make(map[uint64]Observer[T]),
		replayLatest: true,
	}
}

// Subscribe регистрирует наблюдателя. Если поток уже завершен ошибкой,
// наблюдатель получает OnError немедленно. При replay-latest новый
// наблюдатель сразу получает последнее значение, если оно было.
func (s *Subject[T]) Subscribe(o Observer[T]) Disposable {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		if err != nil && o.OnError != nil {
			o.OnError(err)
		}
		return NewDisposable(nil)
	}

	if s.subscribers == nil {
		// Нулевое значение Subject пригодно к использованию.
		s.subscribers = make(map[uint64]Observer[T])
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = o

	replay := s.replayLatest && s.hasLast
	last := s.last
	s.mu.Unlock()

	if replay && o.OnNext != nil {
		o.OnNext(last)
	}

	return NewDisposable(func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	})
}

// Next рассылает значение всем текущим подписчикам.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.last = v
	s.hasLast = true
	observers := s.snapshotLocked()
	s.mu.Unlock()

	for _, o := range observers {
		if o.OnNext != nil {
			o.OnNext(v)
		}
	}
}

// Error терминально завершает поток: все подписчики получают OnError,
// последующие Next игнорируются, новые подписчики получают ошибку сразу.
func (s *Subject[T]) Error(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	observers := s.snapshotLocked()
	s.subscribers = make(map[uint64]Observer[T])
	s.mu.Unlock()

	for _, o := range observers {
		if o.OnError != nil {
			o.OnError(err)
		}
	}
}

// Complete завершает поток без ошибки. Подписчики просто отписываются.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.subscribers = make(map[uint64]Observer[T])
	s.mu.Unlock()
}

// Value возвращает последнее опубликованное значение, если оно было.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// IsTerminated возвращает true после Error или Complete.
func (s *Subject[T]) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Subject[T]) snapshotLocked() []Observer[T] {
	observers := make([]Observer[T], 0, len(s.subscribers))
	for _, o := range s.subscribers {
		observers = append(observers, o)
	}
	return observers
}

// ObserveOn оборачивает наблюдателя так, что его колбэки выполняются
// на планировщике: события из потоков транспортного слоя сериализуются
// в один упорядоченный контекст исполнения сессии.
func ObserveOn[T any](sched *Scheduler, o Observer[T]) Observer[T] {
	return Observer[T]{
		OnNext: func(v T) {
			sched.Post(func() {
				if o.OnNext != nil {
					o.OnNext(v)
				}
			})
		},
		OnError: func(err error) {
			sched.Post(func() {
				if o.OnError != nil {
					o.OnError(err)
				}
			})
		},
	}
}
