//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestAdmin_Unauthorized(t *testing.T) {
	resp := doGet(t, "/api/admin/coupons")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
	}

	resp2 := doAuthed(t, http.MethodGet, "/api/admin/coupons", nil, "wrong-key")
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", resp2.StatusCode)
	}
}

func TestAdmin_ListCoupons(t *testing.T) {
	resp := doAuthed(t, http.MethodGet, "/api/admin/coupons", nil, adminAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	coupons := decodeJSON[[]couponView](t, resp)
	byCode := make(map[string]couponView, len(coupons))
	for _, c := range coupons {
		byCode[c.Code] = c
	}
	for _, code := range []string{seededCoupon, seededMonthly, seededQuarterly} {
		if _, ok := byCode[code]; !ok {
			t.Errorf("seeded coupon %s missing from list", code)
		}
	}
}

func TestAdmin_CreateAndDeleteCoupon(t *testing.T) {
	resp := doAuthed(t, http.MethodPost, "/api/admin/coupons", map[string]any{
		"code":            "integ15",
		"discountPercent": 15,
		"validForPlan":    "monthly",
	}, adminAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	created := decodeJSON[couponView](t, resp)
	if created.Code != "INTEG15" {
		t.Errorf("code not normalized: got %q", created.Code)
	}
	if created.ID == "" {
		t.Fatal("expected a generated ID")
	}

	// the new coupon is immediately usable
	vresp := doPost(t, "/api/coupons/validate", map[string]string{
		"code":     "INTEG15",
		"planType": "monthly",
	})
	defer vresp.Body.Close()

	if body := decodeJSON[validateResponse](t, vresp); !body.Valid {
		t.Fatalf("created coupon should validate, got %q", body.Error)
	}

	dresp := doAuthed(t, http.MethodDelete, "/api/admin/coupons/"+created.ID, nil, adminAPIKey)
	defer dresp.Body.Close()

	if dresp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", dresp.StatusCode)
	}
}

func TestAdmin_RegisterAndListClients(t *testing.T) {
	resp := doAuthed(t, http.MethodPost, "/api/admin/clients", map[string]any{
		"name":             "Cliente Integração",
		"phone":            "11987650099",
		"email":            "integ@example.com",
		"subscriptionType": "monthly",
		"hasLoyalty":       true,
	}, adminAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	lresp := doAuthed(t, http.MethodGet, "/api/admin/clients?search=integ@example.com", nil, adminAPIKey)
	defer lresp.Body.Close()

	if lresp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", lresp.StatusCode)
	}

	clients := decodeJSON[[]map[string]any](t, lresp)
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
}
