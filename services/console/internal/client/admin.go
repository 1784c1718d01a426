package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"ExtraGPTConsole/services/console/internal/domain"
)

// Page параметры постраничной выборки
type Page struct {
	Skip  int
	Limit int
}

func (p Page) query() url.Values {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(p.Skip))
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// AdminAPI вызовы администрирования
type AdminAPI struct {
	gw *Gateway
}

// NewAdminAPI создает AdminAPI
func NewAdminAPI(gw *Gateway) *AdminAPI {
	return &AdminAPI{gw: gw}
}

// ListUsers выполняет GET /admin/users
func (a *AdminAPI) ListUsers(ctx context.Context, page Page) ([]domain.User, error) {
	var users []domain.User
	if err := a.gw.Do(ctx, http.MethodGet, "/admin/users", nil, &users, WithQuery(page.query())); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser выполняет POST /admin/users
func (a *AdminAPI) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	var user domain.User
	if err := a.gw.Do(ctx, http.MethodPost, "/admin/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListBusinesses выполняет GET /admin/businesses
func (a *AdminAPI) ListBusinesses(ctx context.Context, page Page) ([]domain.Business, error) {
	var businesses []domain.Business
	if err := a.gw.Do(ctx, http.MethodGet, "/admin/businesses", nil, &businesses, WithQuery(page.query())); err != nil {
		return nil, err
	}
	return businesses, nil
}

// CreateBusiness выполняет POST /admin/businesses
func (a *AdminAPI) CreateBusiness(ctx context.Context, req domain.CreateBusinessRequest) (*domain.Business, error) {
	var business domain.Business
	if err := a.gw.Do(ctx, http.MethodPost, "/admin/businesses", req, &business); err != nil {
		return nil, err
	}
	return &business, nil
}
