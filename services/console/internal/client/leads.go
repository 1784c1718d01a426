package client

import (
	"context"
	"fmt"
	"net/http"

	"ExtraGPTConsole/services/console/internal/domain"
)

// LeadsAPI вызовы лидов
type LeadsAPI struct {
	gw *Gateway
}

// NewLeadsAPI создает LeadsAPI
func NewLeadsAPI(gw *Gateway) *LeadsAPI {
	return &LeadsAPI{gw: gw}
}

// List выполняет GET /leads. Пустой status означает все статусы.
func (l *LeadsAPI) List(ctx context.Context, businessID int64, status domain.LeadStatus) (*domain.LeadsResponse, error) {
	q := businessQuery(businessID)
	if status != "" {
		q.Set("status", string(status))
	}

	var resp domain.LeadsResponse
	if err := l.gw.Do(ctx, http.MethodGet, "/leads", nil, &resp, WithQuery(q)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateStatus выполняет PATCH /leads/{id}/status
func (l *LeadsAPI) UpdateStatus(ctx context.Context, leadID int64, status domain.LeadStatus) error {
	return l.gw.Do(ctx, http.MethodPatch, fmt.Sprintf("/leads/%d/status", leadID), domain.UpdateLeadStatusRequest{Status: status}, nil)
}
