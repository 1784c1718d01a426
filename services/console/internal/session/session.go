// Package session хранит аутентифицированную личность консоли.
package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/client"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/store"
)

// ownerLookupLimit сколько бизнесов просматривается при поиске бизнеса владельца
const ownerLookupLimit = 1000

// Accessor узкий доступ к текущей сессии для страниц и роутера
type Accessor interface {
	// Hydrated сообщает, что восстановление из хранилища завершено
	Hydrated() bool
	// User возвращает копию текущего пользователя или nil
	User() *domain.User
	// BusinessID возвращает бизнес текущего пользователя
	BusinessID() (int64, bool)
}

// Authenticator выполняет вход
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
}

// BusinessLister список бизнесов, нужен для определения бизнеса владельца
type BusinessLister interface {
	ListBusinesses(ctx context.Context, page client.Page) ([]domain.Business, error)
}

// Store сессия с явным жизненным циклом Hydrate / Login / Logout
type Store struct {
	storage    store.Storage
	auth       Authenticator
	businesses BusinessLister
	navigator  client.Navigator
	logger     logger.Logger

	mu         sync.RWMutex
	hydrated   bool
	user       *domain.User
	businessID *int64
}

// NewStore создает Store
func NewStore(storage store.Storage, auth Authenticator, businesses BusinessLister, navigator client.Navigator, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	if navigator == nil {
		navigator = client.NavigatorFunc(func(string) {})
	}
	return &Store{
		storage:    storage,
		auth:       auth,
		businesses: businesses,
		navigator:  navigator,
		logger:     log,
	}
}

// Hydrate восстанавливает пользователя и бизнес из хранилища.
// Пользователь восстанавливается только вместе с обоими токенами.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.hydrated = true }()

	s.user = nil
	s.businessID = nil

	rawUser, hasUser, err := s.storage.Get(ctx, store.KeyUser)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to read session")
	}
	token, hasToken, err := s.storage.Get(ctx, store.KeyAccessToken)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to read session")
	}
	refresh, hasRefresh, err := s.storage.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to read session")
	}
	if !hasUser || !hasToken || token == "" || !hasRefresh || refresh == "" {
		return nil
	}

	var user domain.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Warn("Failed to parse stored user", logger.Error(err))
		if err := s.storage.Remove(ctx, store.KeyUser); err != nil {
			s.logger.Error("Failed to remove stored user", logger.Error(err))
		}
		return nil
	}
	s.user = &user

	if rawID, ok, err := s.storage.Get(ctx, store.KeyBusinessID); err == nil && ok {
		if id, err := strconv.ParseInt(rawID, 10, 64); err == nil {
			s.businessID = &id
		}
	}
	if s.businessID == nil && user.BusinessID != nil {
		id := *user.BusinessID
		s.businessID = &id
	}

	return nil
}

// Login выполняет вход и сохраняет токены, пользователя и бизнес.
// Ошибка входа возвращается вызывающему без изменений.
func (s *Store) Login(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	resp, err := s.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	rawUser, err := json.Marshal(resp.User)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode user")
	}

	writes := []struct{ key, value string }{
		{store.KeyAccessToken, resp.AccessToken},
		{store.KeyRefreshToken, resp.RefreshToken},
		{store.KeyUser, string(rawUser)},
	}
	for _, w := range writes {
		if err := s.storage.Set(ctx, w.key, w.value); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save session")
		}
	}

	user := resp.User
	businessID := s.resolveBusiness(ctx, &user)
	if businessID != nil {
		if err := s.storage.Set(ctx, store.KeyBusinessID, strconv.FormatInt(*businessID, 10)); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save session")
		}
	} else if err := s.storage.Remove(ctx, store.KeyBusinessID); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save session")
	}

	s.mu.Lock()
	s.user = &user
	s.businessID = businessID
	s.hydrated = true
	s.mu.Unlock()

	s.logger.Info("Signed in",
		logger.String("username", user.Username),
		logger.String("role", string(user.Role)))

	copied := user
	return &copied, nil
}

// resolveBusiness определяет бизнес по роли:
// владелец ищется среди бизнесов по owner_id, оператор берет business_id пользователя.
func (s *Store) resolveBusiness(ctx context.Context, user *domain.User) *int64 {
	switch user.Role {
	case domain.RoleOwner:
		if s.businesses == nil {
			return nil
		}
		businesses, err := s.businesses.ListBusinesses(ctx, client.Page{Limit: ownerLookupLimit})
		if err != nil {
			s.logger.Warn("Failed to resolve owner business", logger.Error(err))
			return nil
		}
		for _, b := range businesses {
			if b.OwnerID == user.ID {
				id := b.ID
				return &id
			}
		}
		return nil
	case domain.RoleOperator:
		if user.BusinessID != nil {
			id := *user.BusinessID
			return &id
		}
	}
	return nil
}

// Logout очищает сессию и уводит на страницу входа без запроса к серверу
func (s *Store) Logout(ctx context.Context) error {
	err := s.storage.Remove(ctx, store.SessionKeys...)
	s.clear()
	s.navigator.ToLogin("logout")
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to clear session")
	}
	return nil
}

// Expire вызывается Gateway после неудачного обновления токена.
// Хранилище к этому моменту уже очищено.
func (s *Store) Expire(reason string) {
	s.clear()
	s.navigator.ToLogin(reason)
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.businessID = nil
	s.hydrated = true
}

// Hydrated сообщает, что Hydrate уже выполнен
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// User возвращает копию текущего пользователя
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	copied := *s.user
	return &copied
}

// Authenticated сообщает, что пользователь вошел
func (s *Store) Authenticated() bool {
	return s.User() != nil
}

// BusinessID возвращает бизнес текущего пользователя
func (s *Store) BusinessID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.businessID == nil {
		return 0, false
	}
	return *s.businessID, true
}

// SetBusinessID выбирает рабочий бизнес администратора.
// У владельца и оператора бизнес определяется при входе и не меняется.
// Выбор сбрасывается при следующем входе.
func (s *Store) SetBusinessID(ctx context.Context, id int64) error {
	user := s.User()
	if user == nil {
		return pkgerrors.New(pkgerrors.ErrUnauthorized, "not signed in")
	}
	if user.Role != domain.RoleAdmin {
		return pkgerrors.New(pkgerrors.ErrForbidden, "business selection is admin only").
			WithDetails("Выбор бизнеса доступен только администратору")
	}
	if id <= 0 {
		return pkgerrors.New(pkgerrors.ErrValidation, "invalid business id").WithDetails("business must be selected")
	}

	if err := s.storage.Set(ctx, store.KeyBusinessID, strconv.FormatInt(id, 10)); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save session")
	}
	s.mu.Lock()
	s.businessID = &id
	s.mu.Unlock()
	return nil
}
