// Package admin управляет страницей администратора: пользователи и бизнесы.
package admin

import (
	"context"
	"strings"
	"sync"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/pkg/validation"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/client"
	"ExtraGPTConsole/services/console/internal/domain"
)

// DefaultPageSize размер страницы таблиц
const DefaultPageSize = 20

const minPasswordLength = 6

// API методы администрирования
type API interface {
	ListUsers(ctx context.Context, page client.Page) ([]domain.User, error)
	CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	ListBusinesses(ctx context.Context, page client.Page) ([]domain.Business, error)
	CreateBusiness(ctx context.Context, req domain.CreateBusinessRequest) (*domain.Business, error)
}

// UserForm форма создания пользователя
type UserForm struct {
	Username string
	Phone    string
	Password string
	Role     string
}

// BusinessForm форма создания бизнеса. OwnerID == 0 означает, что владелец не выбран.
type BusinessForm struct {
	Name    string
	OwnerID int64
}

// Snapshot состояние страницы
type Snapshot struct {
	Users          []domain.User
	UsersPage      int
	Businesses     []domain.Business
	BusinessesPage int
	PageSize       int
	Error          string
}

// Controller страница администратора
type Controller struct {
	api       API
	audit     audit.Publisher
	logger    logger.Logger
	validator *validation.Validator
	pageSize  int

	mu             sync.Mutex
	users          []domain.User
	usersPage      int
	businesses     []domain.Business
	businessesPage int
	lastErr        error
}

// NewController создает контроллер страницы администратора
func NewController(api API, pub audit.Publisher, log logger.Logger, pageSize int) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	if pub == nil {
		pub = audit.Nop{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		api:       api,
		audit:     pub,
		logger:    log.With(logger.String("page", "admin")),
		validator: validation.NewValidator(),
		pageSize:  pageSize,
	}
}

func (c *Controller) page(n int) client.Page {
	return client.Page{Skip: n * c.pageSize, Limit: c.pageSize}
}

// Load загружает обе таблицы
func (c *Controller) Load(ctx context.Context) error {
	if err := c.LoadUsers(ctx); err != nil {
		return err
	}
	return c.LoadBusinesses(ctx)
}

// LoadUsers загружает текущую страницу пользователей
func (c *Controller) LoadUsers(ctx context.Context) error {
	c.mu.Lock()
	n := c.usersPage
	c.mu.Unlock()

	users, err := c.api.ListUsers(ctx, c.page(n))
	if err != nil {
		c.logger.Warn("Failed to load users", logger.Int("page", n), logger.Error(err))
		return c.fail(err)
	}

	c.mu.Lock()
	c.users = users
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// LoadBusinesses загружает текущую страницу бизнесов
func (c *Controller) LoadBusinesses(ctx context.Context) error {
	c.mu.Lock()
	n := c.businessesPage
	c.mu.Unlock()

	businesses, err := c.api.ListBusinesses(ctx, c.page(n))
	if err != nil {
		c.logger.Warn("Failed to load businesses", logger.Int("page", n), logger.Error(err))
		return c.fail(err)
	}

	c.mu.Lock()
	c.businesses = businesses
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// SetUsersPage переходит на страницу пользователей, нумерация с нуля
func (c *Controller) SetUsersPage(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.usersPage = n
	c.mu.Unlock()
	return c.LoadUsers(ctx)
}

// SetBusinessesPage переходит на страницу бизнесов, нумерация с нуля
func (c *Controller) SetBusinessesPage(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.businessesPage = n
	c.mu.Unlock()
	return c.LoadBusinesses(ctx)
}

// OwnerOptions владельцы из уже загруженного списка пользователей
func (c *Controller) OwnerOptions() []domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()

	owners := make([]domain.User, 0, len(c.users))
	for _, u := range c.users {
		if u.Role == domain.RoleOwner {
			owners = append(owners, u)
		}
	}
	return owners
}

// CreateUser создает пользователя и перезагружает обе таблицы
func (c *Controller) CreateUser(ctx context.Context, form UserForm) (*domain.User, error) {
	if err := c.validator.ValidateRequired(form.Username, "username"); err != nil {
		return nil, c.fail(pkgerrors.Invalid(err))
	}
	if err := c.validator.ValidateStringLength(form.Password, "password", minPasswordLength, 128); err != nil {
		return nil, c.fail(pkgerrors.Invalid(err))
	}
	role, err := domain.ParseRole(form.Role)
	if err != nil {
		return nil, c.fail(pkgerrors.Invalid(err))
	}

	user, err := c.api.CreateUser(ctx, domain.CreateUserRequest{
		Username: strings.TrimSpace(form.Username),
		Phone:    strings.TrimSpace(form.Phone),
		Password: form.Password,
		Role:     role,
	})
	if err != nil {
		c.logger.Warn("Failed to create user", logger.String("username", form.Username), logger.Error(err))
		return nil, c.fail(err)
	}

	c.audit.Publish(ctx, audit.EventUserCreated, map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
	return user, c.Load(ctx)
}

// CreateBusiness создает бизнес и перезагружает обе таблицы.
// Без выбранного владельца запрос не отправляется.
func (c *Controller) CreateBusiness(ctx context.Context, form BusinessForm) (*domain.Business, error) {
	if err := c.validator.ValidateRequired(form.Name, "name"); err != nil {
		return nil, c.fail(pkgerrors.Invalid(err))
	}
	if err := c.validator.ValidateID(form.OwnerID, "owner_id"); err != nil {
		return nil, c.fail(pkgerrors.Invalid(err))
	}

	business, err := c.api.CreateBusiness(ctx, domain.CreateBusinessRequest{
		Name:    strings.TrimSpace(form.Name),
		OwnerID: form.OwnerID,
	})
	if err != nil {
		c.logger.Warn("Failed to create business", logger.String("name", form.Name), logger.Error(err))
		return nil, c.fail(err)
	}

	c.audit.Publish(ctx, audit.EventBusinessCreated, map[string]interface{}{
		"business_id": business.ID,
		"name":        business.Name,
		"owner_id":    business.OwnerID,
	})
	return business, c.Load(ctx)
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return err
}

// Snapshot возвращает копию состояния
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Users:          append([]domain.User(nil), c.users...),
		UsersPage:      c.usersPage,
		Businesses:     append([]domain.Business(nil), c.businesses...),
		BusinessesPage: c.businessesPage,
		PageSize:       c.pageSize,
	}
	if c.lastErr != nil {
		snap.Error = pkgerrors.UserMessage(c.lastErr)
	}
	return snap
}
