package events

import (
	"sync"
	"time"
)

// Scheduler — последовательный исполнитель задач сессии.
// Все изменения состояния оркестратора проходят через одну горутину:
// параллельной мутации собственного состояния не бывает, порядок задач
// совпадает с порядком Post.
type Scheduler struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// schedulerQueueSize — запас очереди задач. Переполнение очереди при
// живом потребителе означает застрявший обработчик, а не нехватку буфера.
const schedulerQueueSize = 256

// NewScheduler создает планировщик и запускает его горутину.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		tasks: make(chan func(), schedulerQueueSize),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.done:
			// Дорабатываем уже поставленные задачи.
			for {
				select {
				case task := <-s.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Post ставит задачу в очередь. Задачи после Close отбрасываются.
func (s *Scheduler) Post(task func()) {
	if task == nil {
		return
	}
	select {
	case <-s.done:
	case s.tasks <- task:
	}
}

// ScheduleOnce выполняет задачу на планировщике после задержки.
// Возвращенный Disposable отменяет еще не сработавшую задачу.
func (s *Scheduler) ScheduleOnce(delay time.Duration, task func()) Disposable {
	var mu sync.Mutex
	cancelled := false

	timer := time.AfterFunc(delay, func() {
		s.Post(func() {
			mu.Lock()
			skip := cancelled
			mu.Unlock()
			if !skip {
				task()
			}
		})
	})

	return NewDisposable(func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		timer.Stop()
	})
}

// SchedulePeriodic выполняет задачу на планировщике немедленно и затем
// с заданным периодом, пока возвращенный Disposable не будет освобожден.
func (s *Scheduler) SchedulePeriodic(interval time.Duration, task func()) Disposable {
	stop := make(chan struct{})
	var stopOnce sync.Once

	guarded := func() {
		select {
		case <-stop:
		default:
			task()
		}
	}

	go func() {
		s.Post(guarded)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Post(guarded)
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()

	return NewDisposable(func() {
		stopOnce.Do(func() { close(stop) })
	})
}

// Close останавливает планировщик и дожидается завершения его горутины.
// Уже поставленные задачи дорабатываются, новые отбрасываются.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}
