// Package router описывает маршруты консоли, проверку доступа и навигацию.
package router

import (
	"sync"

	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/session"
)

// Пути страниц
const (
	PathLogin     = "/login"
	PathDashboard = "/"
	PathChat      = "/chat"
	PathLeads     = "/leads"
	PathProfile   = "/profile"
	PathBotConfig = "/bot-config"
	PathAdmin     = "/admin"
)

// Route страница консоли
type Route struct {
	Path  string
	Title string
	// Public страница доступна без входа
	Public bool
	// AllowedRoles пустой список разрешает любую роль
	AllowedRoles domain.RoleSet
}

// Routes таблица маршрутов
var Routes = []Route{
	{Path: PathLogin, Title: "Login", Public: true},
	{Path: PathDashboard, Title: "Dashboard"},
	{Path: PathChat, Title: "Conversations"},
	{Path: PathLeads, Title: "Leads"},
	{Path: PathProfile, Title: "Settings"},
	{Path: PathBotConfig, Title: "Bot Config", AllowedRoles: domain.RoleSet{domain.RoleOwner, domain.RoleAdmin}},
	{Path: PathAdmin, Title: "Admin Panel", AllowedRoles: domain.RoleSet{domain.RoleAdmin}},
}

// Lookup ищет маршрут по пути
func Lookup(path string) (Route, bool) {
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Outcome результат проверки маршрута
type Outcome int

const (
	// Loading сессия еще не восстановлена, ничего не показываем
	Loading Outcome = iota
	Render
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision решение Guard
type Decision struct {
	Outcome Outcome
	// Target путь перенаправления при Redirect
	Target string
	Route  Route
}

// Guard пропускает к странице только пользователей с подходящей ролью
type Guard struct {
	session session.Accessor
}

// NewGuard создает Guard
func NewGuard(s session.Accessor) *Guard {
	return &Guard{session: s}
}

// Resolve решает, что показать по пути.
// Без пользователя ведет на /login, при чужой роли на главную.
func (g *Guard) Resolve(path string) Decision {
	route, ok := Lookup(path)
	if !ok {
		return Decision{Outcome: Redirect, Target: PathDashboard}
	}
	if route.Public {
		return Decision{Outcome: Render, Route: route}
	}
	if !g.session.Hydrated() {
		return Decision{Outcome: Loading, Route: route}
	}

	user := g.session.User()
	if user == nil {
		return Decision{Outcome: Redirect, Target: PathLogin, Route: route}
	}
	if !route.AllowedRoles.Allows(user.Role) {
		return Decision{Outcome: Redirect, Target: PathDashboard, Route: route}
	}
	return Decision{Outcome: Render, Route: route}
}

// NavItem пункт меню
type NavItem struct {
	Path  string
	Label string
}

// navOnly пункты меню, видимые только одной роли.
// Меню уже, чем доступ: администратор может открыть /bot-config, но в меню его не видит.
var navOnly = map[string]domain.Role{
	PathBotConfig: domain.RoleOwner,
	PathAdmin:     domain.RoleAdmin,
}

var navOrder = []string{PathDashboard, PathChat, PathLeads, PathBotConfig, PathAdmin, PathProfile}

// Nav возвращает меню для пользователя
func Nav(user *domain.User) []NavItem {
	if user == nil {
		return nil
	}
	items := make([]NavItem, 0, len(navOrder))
	for _, path := range navOrder {
		if only, ok := navOnly[path]; ok && only != user.Role {
			continue
		}
		route, _ := Lookup(path)
		items = append(items, NavItem{Path: path, Label: route.Title})
	}
	return items
}

// Router хранит текущее положение и реагирует на принудительный переход ко входу
type Router struct {
	mu       sync.Mutex
	location string
	reason   string
	onLogin  []func(reason string)
}

// New создает Router на главной странице
func New() *Router {
	return &Router{location: PathDashboard}
}

// Navigate меняет текущий путь
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = path
}

// ToLogin переводит на страницу входа и уведомляет подписчиков
func (r *Router) ToLogin(reason string) {
	r.mu.Lock()
	r.location = PathLogin
	r.reason = reason
	listeners := append([]func(string){}, r.onLogin...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(reason)
	}
}

// OnLogin подписывает на принудительный переход ко входу
func (r *Router) OnLogin(fn func(reason string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLogin = append(r.onLogin, fn)
}

// Location возвращает текущий путь
func (r *Router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// Reason причина последнего перехода ко входу
func (r *Router) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}
