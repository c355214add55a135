package service

import "sync"

// TypeLocks — по одному мьютексу на тип сущностей. Реплей очереди и синк
// одного типа взаимно исключаются, чтобы страница дельты не перезатёрла
// запись между отправкой мутации и записью подтверждения.
type TypeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTypeLocks создаёт пустой набор блокировок.
func NewTypeLocks() *TypeLocks {
	return &TypeLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock захватывает блокировку типа и возвращает функцию освобождения.
func (t *TypeLocks) Lock(entityType string) func() {
	t.mu.Lock()
	l, ok := t.locks[entityType]
	if !ok {
		l = &sync.Mutex{}
		t.locks[entityType] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}
