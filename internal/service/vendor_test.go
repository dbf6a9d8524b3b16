package service

import (
	"context"
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/shopspring/decimal"
)

func (f *fixture) vendorUser(t *testing.T) *models.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), &models.User{Username: "corner-shop", Role: models.RoleVendor})
	if err != nil {
		t.Fatalf("create vendor user: %v", err)
	}
	return u
}

func TestSaveVendorProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.vendorUser(t)

	tests := []struct {
		name    string
		profile VendorProfile
		wantErr apperr.Kind
	}{
		{"valid", VendorProfile{Name: "Corner Shop", Category: "Bakery"}, -1},
		{"default category", VendorProfile{Name: "Corner Shop"}, -1},
		{"missing name", VendorProfile{Category: "toys"}, apperr.KindValidation},
		{"unknown category", VendorProfile{Name: "Corner Shop", Category: "casino"}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.svc.SaveVendorProfile(ctx, user, tt.profile)
			if tt.wantErr >= 0 {
				if apperr.KindOf(err) != tt.wantErr {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SaveVendorProfile() error = %v", err)
			}
			if v.ID != "corner-shop" || v.UserID == nil || *v.UserID != user.ID {
				t.Errorf("vendor = %+v", v)
			}
		})
	}

	if _, err := f.svc.SaveVendorProfile(ctx, f.parent, VendorProfile{Name: "x"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("parent error = %v, want forbidden", err)
	}
}

func TestVendorHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.vendorUser(t)

	if _, err := f.svc.SubmitPurchase(ctx, f.purchase("10.00")); err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	if _, err := f.svc.SubmitPurchase(ctx, f.purchase("12.00")); err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}

	txs, err := f.svc.VendorHistory(ctx, user, "corner-shop")
	if err != nil {
		t.Fatalf("VendorHistory() error = %v", err)
	}
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(12)) {
		t.Errorf("history = %v, want only the last hour", txs)
	}

	if _, err := f.svc.VendorHistory(ctx, user, "someone-else"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("foreign history error = %v, want forbidden", err)
	}
}

func TestSubmitVendorPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.vendorUser(t)

	req := f.purchase("10.00")
	req.VendorID = ""
	res, err := f.svc.SubmitVendorPayment(ctx, user, req)
	if err != nil {
		t.Fatalf("SubmitVendorPayment() error = %v", err)
	}
	if res.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved", res.Status)
	}

	req.VendorID = "other-shop"
	if _, err := f.svc.SubmitVendorPayment(ctx, user, req); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("impersonation error = %v, want forbidden", err)
	}
}

func TestFamilyInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.vendorUser(t)

	info, err := f.svc.FamilyInfo(ctx, user, "1234")
	if err != nil {
		t.Fatalf("FamilyInfo() error = %v", err)
	}
	if !info.Limit.Equal(decimal.NewFromInt(50)) || info.Surname != "" || info.RequiresApproval {
		t.Errorf("info before purchase = %+v", info)
	}

	limit := decimal.NewFromInt(30)
	f.setOverride(&limit, true)
	if _, err := f.svc.SubmitPurchase(ctx, f.purchase("10.00")); err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}

	info, err = f.svc.FamilyInfo(ctx, user, "1234")
	if err != nil {
		t.Fatalf("FamilyInfo() error = %v", err)
	}
	if !info.Limit.Equal(limit) || info.Surname != "Smith" || !info.RequiresApproval {
		t.Errorf("info after purchase = %+v", info)
	}

	if _, err := f.svc.FamilyInfo(ctx, user, "9999"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("unknown family error = %v, want not found", err)
	}
}

func TestCachedSurname(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.vendorUser(t)

	if _, err := f.svc.CachedSurname(ctx, user, "1234"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("error before purchase = %v, want not found", err)
	}
	if _, err := f.svc.SubmitPurchase(ctx, f.purchase("10.00")); err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}
	entry, err := f.svc.CachedSurname(ctx, user, "1234")
	if err != nil || entry.Surname != "Smith" {
		t.Errorf("CachedSurname() = %+v, %v", entry, err)
	}
}
