package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/tinyurl/internal/models"
	"github.com/SergeiKhy/tinyurl/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL   = errors.New("invalid URL")
	ErrInvalidCode  = errors.New("code must be 6-8 alphanumeric characters")
	ErrLinkNotFound = repository.ErrLinkNotFound
	ErrCodeExists   = repository.ErrCodeExists
)

// maxGenerateAttempts число попыток для сгенерированного кода при коллизии.
// Кастомный код при коллизии сразу возвращает ErrCodeExists.
const maxGenerateAttempts = 3

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	ListLinks(ctx context.Context) ([]*models.Link, error)
	GetLink(ctx context.Context, code string) (*models.Link, error)
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	DeleteLink(ctx context.Context, code string) error
	// ResolveLink засчитывает клик и возвращает ссылку для редиректа
	ResolveLink(ctx context.Context, code string) (*models.Link, error)
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo  repository.LinkRepository
	cacheRepo repository.CacheRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(linkRepo repository.LinkRepository, cacheRepo repository.CacheRepository, logger *zap.Logger) LinkService {
	if cacheRepo == nil {
		cacheRepo = repository.NewNoopCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListLinks возвращает все ссылки, новые первыми
func (s *linkService) ListLinks(ctx context.Context) ([]*models.Link, error) {
	return s.linkRepo.FindAll(ctx)
}

// GetLink получает ссылку по коду (сначала из кэша, затем из БД)
func (s *linkService) GetLink(ctx context.Context, code string) (*models.Link, error) {
	if validateCode(code) != nil {
		return nil, ErrLinkNotFound
	}

	link, err := s.cacheRepo.Get(ctx, code)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("Cache read failed", zap.String("code", code), zap.Error(err))
	}

	link, err = s.linkRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	s.cacheFill(ctx, link)
	return link, nil
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	// Валидация до любого обращения к хранилищу
	if err := validateURL(input.URL); err != nil {
		return nil, err
	}

	custom := input.Code != nil && *input.Code != ""
	if custom {
		if err := validateCode(*input.Code); err != nil {
			return nil, err
		}
		return s.insert(ctx, *input.Code, input.URL)
	}

	for attempt := 1; ; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		if err := validateCode(code); err != nil {
			return nil, fmt.Errorf("generated code %q: %w", code, err)
		}

		link, err := s.insert(ctx, code, input.URL)
		if errors.Is(err, ErrCodeExists) && attempt < maxGenerateAttempts {
			s.logger.Debug("Generated code collision, retrying",
				zap.String("code", code),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return link, err
	}
}

// insert проверка существования здесь только быстрый путь,
// корректность обеспечивает уникальное ограничение в Insert
func (s *linkService) insert(ctx context.Context, code, url string) (*models.Link, error) {
	_, err := s.linkRepo.FindByCode(ctx, code)
	switch {
	case err == nil:
		return nil, ErrCodeExists
	case !errors.Is(err, ErrLinkNotFound):
		return nil, err
	}

	link := &models.Link{
		Code:      code,
		URL:       url,
		CreatedAt: s.now(),
	}
	if err := s.linkRepo.Insert(ctx, link); err != nil {
		return nil, err
	}

	s.cacheFill(ctx, link)
	return link, nil
}

// DeleteLink удаляет ссылку по коду
func (s *linkService) DeleteLink(ctx context.Context, code string) error {
	if validateCode(code) != nil {
		return ErrLinkNotFound
	}

	// Пока код заблокирован, кэш его не отдаёт и не заполняет
	if err := s.cacheRepo.Lock(ctx, code); err != nil {
		return fmt.Errorf("failed to lock cached link: %w", err)
	}

	if err := s.linkRepo.DeleteByCode(ctx, code); err != nil {
		s.cacheUnlock(ctx, code)
		return err
	}

	if err := s.cacheRepo.Tombstone(ctx, code); err != nil {
		s.logger.Warn("Failed to tombstone cached link", zap.String("code", code), zap.Error(err))
	}
	return nil
}

// ResolveLink увеличивает счётчик кликов до того, как будет отдан редирект
func (s *linkService) ResolveLink(ctx context.Context, code string) (*models.Link, error) {
	if validateCode(code) != nil {
		return nil, ErrLinkNotFound
	}

	if err := s.cacheRepo.Lock(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to lock cached link: %w", err)
	}

	link, err := s.linkRepo.RecordClick(ctx, code, s.now())
	if err != nil {
		s.cacheUnlock(ctx, code)
		return nil, err
	}

	if err := s.cacheRepo.Commit(ctx, link); err != nil {
		s.logger.Warn("Failed to commit cached link", zap.String("code", code), zap.Error(err))
	}
	return link, nil
}

// cacheFill ошибки кэша на чтении не ломают запрос
func (s *linkService) cacheFill(ctx context.Context, link *models.Link) {
	if err := s.cacheRepo.Fill(ctx, link); err != nil {
		s.logger.Warn("Failed to cache link", zap.String("code", link.Code), zap.Error(err))
	}
}

// cacheUnlock при неудаче метка истечёт вместе с TTL, до тех пор код читается из БД
func (s *linkService) cacheUnlock(ctx context.Context, code string) {
	if err := s.cacheRepo.Unlock(ctx, code); err != nil {
		s.logger.Warn("Failed to unlock cached link", zap.String("code", code), zap.Error(err))
	}
}
