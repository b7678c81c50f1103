// Package service реализует бизнес-логику выдачи книг: каталог, читателей с их бюджетами,
// жизненный цикл выдачи и пакетные операции.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/notifier"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	InTx(ctx context.Context, fn func(repository.Tx) error) error
	View(ctx context.Context, fn func(repository.Tx) error) error
}

// Notifier доставляет напоминания о сроках возврата.
type Notifier interface {
	SendReminder(ctx context.Context, r notifier.Reminder) (int, time.Duration, error)
}

// Service содержит бизнес-логику сервиса выдачи книг.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом уведомлений.
// n может быть nil, тогда напоминания не отправляются.
func NewService(repo Repository, n Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: n,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) today() time.Time {
	return model.Today(s.now)
}

// RegisterUser регистрирует нового сотрудника.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.repo.CreateUser(ctx, login, hashed)
}

// AuthenticateUser проверяет логин и пароль и возвращает идентификатор пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, model.ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, model.ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
