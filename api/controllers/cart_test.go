package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	cartsvc "github.com/shoplight/shoplight-backend/internal/cart"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/pricing"
)

type stubCartService struct {
	view    *cartsvc.CartView
	line    *models.CartLine
	err     error
	adopted bool
}

func (s *stubCartService) AddLine(ctx context.Context, owner identity.OwnerKey, variantID uuid.UUID, qty int) (*models.CartLine, error) {
	return s.line, s.err
}

func (s *stubCartService) SetQuantity(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, qty int) (*models.CartLine, error) {
	return s.line, s.err
}

func (s *stubCartService) RemoveLine(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID) error {
	return s.err
}

func (s *stubCartService) GetCart(ctx context.Context, owner identity.OwnerKey) (*cartsvc.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) Clear(ctx context.Context, owner identity.OwnerKey) error {
	return s.err
}

func (s *stubCartService) Adopt(ctx context.Context, guest identity.OwnerKey, user identity.OwnerKey) error {
	s.adopted = true
	return s.err
}

func ownerRequest(method, target, body string, owner identity.OwnerKey) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(identity.WithOwner(req.Context(), owner))
}

func TestCartFetchSuccess(t *testing.T) {
	owner, _ := identity.NewOwnerKey(enums.OwnerKindUser, uuid.NewString())
	view := &cartsvc.CartView{
		Totals: pricing.Totals{SubtotalCents: 2000, TotalCents: 3160},
	}
	handler := CartFetch(&stubCartService{view: view}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, ownerRequest(http.MethodGet, "/api/v1/cart", "", owner))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data cartsvc.CartView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Totals.TotalCents != 3160 {
		t.Fatalf("unexpected total: %d", envelope.Data.Totals.TotalCents)
	}
}

func TestCartFetchMissingOwnerContext(t *testing.T) {
	handler := CartFetch(&stubCartService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestCartAddLineSuccess(t *testing.T) {
	owner, _ := identity.NewOwnerKey(enums.OwnerKindGuest, uuid.NewString())
	line := &models.CartLine{ID: uuid.New(), Quantity: 2}
	handler := CartAddLine(&stubCartService{line: line}, nil)

	body := `{"variantId":"` + uuid.NewString() + `","quantity":2}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, ownerRequest(http.MethodPost, "/api/v1/cart/lines", body, owner))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestCartAddLineRejectsZeroQuantity(t *testing.T) {
	owner, _ := identity.NewOwnerKey(enums.OwnerKindGuest, uuid.NewString())
	handler := CartAddLine(&stubCartService{}, nil)

	body := `{"variantId":"` + uuid.NewString() + `","quantity":0}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, ownerRequest(http.MethodPost, "/api/v1/cart/lines", body, owner))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartAddLineSurfacesOutOfStock(t *testing.T) {
	owner, _ := identity.NewOwnerKey(enums.OwnerKindGuest, uuid.NewString())
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeOutOfStock, "only 1 left")}
	handler := CartAddLine(svc, nil)

	body := `{"variantId":"` + uuid.NewString() + `","quantity":5}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, ownerRequest(http.MethodPost, "/api/v1/cart/lines", body, owner))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeOutOfStock) {
		t.Fatalf("unexpected code: %s", envelope.Error.Code)
	}
	if envelope.Error.Message != "only 1 left" {
		t.Fatalf("unexpected message: %s", envelope.Error.Message)
	}
}

func TestCartAdoptRequiresUserOwner(t *testing.T) {
	owner, _ := identity.NewOwnerKey(enums.OwnerKindGuest, uuid.NewString())
	svc := &stubCartService{}
	handler := CartAdopt(svc, nil)

	body := `{"guestToken":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, ownerRequest(http.MethodPost, "/api/v1/cart/adopt", body, owner))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.adopted {
		t.Fatal("adopt should not run for guest owners")
	}
}
