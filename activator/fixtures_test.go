package activator_test

import (
	"errors"
	"fmt"
)

type Logger interface {
	Log(msg string)
}

type memoryLogger struct {
	lines []string
}

func (l *memoryLogger) Log(msg string) { l.lines = append(l.lines, msg) }

func newMemoryLogger() *memoryLogger { return &memoryLogger{} }

func newLogger() Logger { return &memoryLogger{} }

type Database struct {
	DSN string
}

func newDatabase() (*Database, error) { return &Database{DSN: "memory"}, nil }

var errDatabaseDown = errors.New("database down")

func newFailingDatabase() (*Database, error) { return nil, errDatabaseDown }

type UserService struct {
	DB     *Database
	Logger Logger
}

func newUserService(db *Database, logger Logger) *UserService {
	return &UserService{DB: db, Logger: logger}
}

type Hook interface {
	Name() string
}

type namedHook string

func (h namedHook) Name() string { return string(h) }

type Store[T any] interface {
	Get(id int) (T, error)
}

type User struct {
	ID   int
	Name string
}

type memoryStore[T any] struct {
	items map[int]T
}

func (s *memoryStore[T]) Get(id int) (T, error) {
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("item %d not found", id)
	}
	return item, nil
}

type Cached[S any] struct {
	Inner S
	hits  int
}

func (c *Cached[S]) Hits() int { return c.hits }
