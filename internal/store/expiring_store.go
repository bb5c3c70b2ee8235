// Package store содержит in-memory хранилище записей с TTL, которое используется
// для кодов подтверждения email и приватных ссылок на интервью.
package store

import (
	"context"
	"log"
	"sync"
	"time"
)

// Outcome описывает, что CompareAndUpdate обнаружил для ключа.
type Outcome int

const (
	// NotFound: ключа нет или запись уже удалена сборщиком.
	NotFound Outcome = iota
	// Expired: запись есть, но now >= ExpiresAt. Предикат не вызывается.
	Expired
	// Rejected: предикат вернул false, ничего не записано.
	Rejected
	// Applied: предикат вернул true, результат мутатора сохранен.
	Applied
)

func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case Rejected:
		return "rejected"
	case Applied:
		return "applied"
	default:
		return "unknown"
	}
}

// Entry - копия записи на момент чтения.
// ExpiresAt ограничивает видимость для читателей, RetainUntil - удаление сборщиком.
type Entry[V any] struct {
	Key         string
	Value       V
	ExpiresAt   time.Time
	RetainUntil time.Time
}

// Live сообщает, действительна ли запись в момент now.
func (e Entry[V]) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

type slot[V any] struct {
	mu      sync.Mutex
	entry   Entry[V]
	ready   bool
	removed bool
}

// Options настраивает ExpiringStore.
type Options struct {
	// Grace добавляется к ExpiresAt при Put и задает RetainUntil.
	Grace time.Duration
	// Now подменяет часы (используется в тестах).
	Now func() time.Time
	// Name используется в логах сборщика.
	Name string
}

// ExpiringStore - конкурентная карта key -> запись с временем жизни у каждой записи.
// Запись меняется только под собственной блокировкой, операции над разными ключами
// пересекаются лишь на коротком поиске в карте.
type ExpiringStore[V any] struct {
	mu    sync.RWMutex
	slots map[string]*slot[V]
	grace time.Duration
	now   func() time.Time
	name  string
}

// New создает пустое хранилище.
func New[V any](opts Options) *ExpiringStore[V] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	name := opts.Name
	if name == "" {
		name = "store"
	}
	grace := opts.Grace
	if grace < 0 {
		grace = 0
	}
	return &ExpiringStore[V]{
		slots: make(map[string]*slot[V]),
		grace: grace,
		now:   now,
		name:  name,
	}
}

// Now возвращает текущее время по часам хранилища.
func (s *ExpiringStore[V]) Now() time.Time {
	return s.now()
}

func (s *ExpiringStore[V]) lookup(key string) *slot[V] {
	s.mu.RLock()
	sl := s.slots[key]
	s.mu.RUnlock()
	return sl
}

// Put вставляет или заменяет запись для ключа. Всё, что было прочитано ранее,
// считается устаревшим.
func (s *ExpiringStore[V]) Put(key string, value V, ttl time.Duration) Entry[V] {
	e, _ := s.put(key, value, ttl, false)
	return e
}

// PutIfVacant вставляет запись, только если для ключа нет живой записи
// (ключ отсутствует или запись истекла). Иначе возвращает текущую живую запись и false.
func (s *ExpiringStore[V]) PutIfVacant(key string, value V, ttl time.Duration) (Entry[V], bool) {
	return s.put(key, value, ttl, true)
}

func (s *ExpiringStore[V]) put(key string, value V, ttl time.Duration, onlyVacant bool) (Entry[V], bool) {
	for {
		s.mu.Lock()
		sl, ok := s.slots[key]
		if !ok {
			sl = &slot[V]{}
			s.slots[key] = sl
		}
		s.mu.Unlock()

		sl.mu.Lock()
		if sl.removed {
			// слот удален между поиском и блокировкой, повторяем с новым
			sl.mu.Unlock()
			continue
		}
		now := s.now()
		if onlyVacant && sl.ready && sl.entry.Live(now) {
			e := sl.entry
			sl.mu.Unlock()
			return e, false
		}
		sl.ready = true
		sl.entry = Entry[V]{
			Key:         key,
			Value:       value,
			ExpiresAt:   now.Add(ttl),
			RetainUntil: now.Add(ttl).Add(s.grace),
		}
		e := sl.entry
		sl.mu.Unlock()
		return e, true
	}
}

// Get возвращает значение, только если запись есть и не истекла.
func (s *ExpiringStore[V]) Get(key string) (V, bool) {
	e, ok := s.Peek(key)
	if !ok || !e.Live(s.now()) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Peek возвращает запись, пока сборщик ее не удалил, даже истекшую.
func (s *ExpiringStore[V]) Peek(key string) (Entry[V], bool) {
	sl := s.lookup(key)
	if sl == nil {
		return Entry[V]{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed || !sl.ready {
		return Entry[V]{}, false
	}
	return sl.entry, true
}

// CompareAndUpdate атомарно проверяет predicate на живой записи и, если он выполнен,
// применяет mutate и сохраняет результат.
//
// Возвращается состояние, увиденное внутри критической секции: обновленная запись
// для Applied, неизмененная для Expired и Rejected.
func (s *ExpiringStore[V]) CompareAndUpdate(key string, predicate func(Entry[V]) bool, mutate func(*Entry[V])) (Entry[V], Outcome) {
	sl := s.lookup(key)
	if sl == nil {
		return Entry[V]{}, NotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed || !sl.ready {
		return Entry[V]{}, NotFound
	}

	now := s.now()
	if !sl.entry.Live(now) {
		return sl.entry, Expired
	}
	if predicate != nil && !predicate(sl.entry) {
		return sl.entry, Rejected
	}

	next := sl.entry
	if mutate != nil {
		mutate(&next)
	}
	next.Key = key
	if next.RetainUntil.Before(next.ExpiresAt) {
		next.RetainUntil = next.ExpiresAt
	}
	sl.entry = next
	return next, Applied
}

// Delete удаляет ключ и сообщает, была ли запись.
func (s *ExpiringStore[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return false
	}
	// блокировка слота берется под блокировкой карты, в том же порядке, что и в Reap
	sl.mu.Lock()
	sl.removed = true
	delete(s.slots, key)
	sl.mu.Unlock()
	return true
}

// Len возвращает число записей, еще не удаленных сборщиком.
func (s *ExpiringStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Range вызывает fn для копии каждой еще не удаленной записи. Каждая запись
// копируется под своей блокировкой, fn не должна обращаться к хранилищу.
// Обход прекращается, когда fn возвращает false.
func (s *ExpiringStore[V]) Range(fn func(Entry[V]) bool) {
	s.mu.RLock()
	slots := make([]*slot[V], 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	for _, sl := range slots {
		sl.mu.Lock()
		e, skip := sl.entry, sl.removed || !sl.ready
		sl.mu.Unlock()
		if skip {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Reap удаляет записи с истекшим RetainUntil и возвращает их число.
// Слоты, занятые параллельным обновлением, остаются до следующего прохода.
func (s *ExpiringStore[V]) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, sl := range s.slots {
		if !sl.mu.TryLock() {
			continue
		}
		if sl.ready && !now.Before(sl.entry.RetainUntil) {
			sl.removed = true
			delete(s.slots, key)
			removed++
		}
		sl.mu.Unlock()
	}
	return removed
}

// Run периодически запускает Reap до отмены ctx.
func (s *ExpiringStore[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[ExpiringStore:%s] Запуск периодической очистки (каждые %s)", s.name, interval)
	for {
		select {
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				log.Printf("[ExpiringStore:%s] Удалено истекших записей: %d", s.name, n)
			}
		case <-ctx.Done():
			log.Printf("[ExpiringStore:%s] Завершение работы горутины очистки", s.name)
			return
		}
	}
}
