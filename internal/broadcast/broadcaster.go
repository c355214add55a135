package broadcast

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Типы событий, рассылаемых подписчикам workspace-а.
const (
	EventRecordChanged  = "record.changed"
	EventRecordDeleted  = "record.deleted"
	EventChangeApproved = "change.approved"
	EventChangeRejected = "change.rejected"
)

// Event — событие реального времени. Доставка best-effort, at-most-once,
// без персистентности: отставший или отключившийся клиент добирает
// состояние через дельта-синхронизацию, событие — только ускоритель.
type Event struct {
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	UserID     int64           `json:"user_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Broadcaster — fan-out pub/sub по workspace_id. Регистр подписчиков защищён
// мьютексом; Publish никогда не блокируется: при заполненном буфере
// подписчика вытесняется его самое старое непрочитанное событие.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	bufSize int
	logger  *zap.SugaredLogger
}

// New создаёт Broadcaster с указанным размером буфера подписчика.
func New(bufSize int, logger *zap.SugaredLogger) *Broadcaster {
	if bufSize < 1 {
		bufSize = 16
	}
	return &Broadcaster{
		subs:    make(map[string]map[*subscriber]struct{}),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe регистрирует подписчика workspace-а и возвращает канал событий
// вместе с функцией отписки. Отписка идемпотентна и закрывает канал.
func (b *Broadcaster) Subscribe(workspaceID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.bufSize)}

	b.mu.Lock()
	set, ok := b.subs[workspaceID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[workspaceID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[workspaceID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, workspaceID)
				}
			}
			// закрываем под write-lock: Publish держит read-lock на время
			// отправки, значит отправка в закрытый канал исключена
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	return sub.ch, unsubscribe
}

// Publish рассылает событие всем подписчикам workspace-а. Медленный
// подписчик теряет самое старое событие, издатель не ждёт никого.
func (b *Broadcaster) Publish(workspaceID string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[workspaceID] {
		select {
		case sub.ch <- ev:
		default:
			// буфер полон: вытесняем самое старое и пробуем ещё раз
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
			if b.logger != nil {
				b.logger.Debugw("broadcast: slow subscriber dropped event",
					"workspace_id", workspaceID, "event_type", ev.Type)
			}
		}
	}
}

// SubscriberCount возвращает число подписчиков workspace-а (для тестов и статуса).
func (b *Broadcaster) SubscriberCount(workspaceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[workspaceID])
}
