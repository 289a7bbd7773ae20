package models

import (
	"testing"
	"time"
)

func TestVehicleVersionCoversYear(t *testing.T) {
	tests := []struct {
		name    string
		version VehicleVersion
		year    int
		want    bool
	}{
		{name: "before production", version: VehicleVersion{YearFrom: 2012, YearTo: 2016}, year: 2011, want: false},
		{name: "first year", version: VehicleVersion{YearFrom: 2012, YearTo: 2016}, year: 2012, want: true},
		{name: "last year", version: VehicleVersion{YearFrom: 2012, YearTo: 2016}, year: 2016, want: true},
		{name: "after production", version: VehicleVersion{YearFrom: 2012, YearTo: 2016}, year: 2017, want: false},
		{name: "still in production", version: VehicleVersion{YearFrom: 2019}, year: 2026, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.version.CoversYear(tc.year); got != tc.want {
				t.Fatalf("CoversYear(%d) = %v, want %v", tc.year, got, tc.want)
			}
		})
	}
}

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{BuyerID: 7, SellerID: 9}

	tests := []struct {
		name            string
		userID          int64
		wantParticipant bool
		wantCounterpart int64
	}{
		{name: "buyer", userID: 7, wantParticipant: true, wantCounterpart: 9},
		{name: "seller", userID: 9, wantParticipant: true, wantCounterpart: 7},
		{name: "stranger", userID: 11, wantParticipant: false, wantCounterpart: 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.HasParticipant(tc.userID); got != tc.wantParticipant {
				t.Fatalf("HasParticipant(%d) = %v, want %v", tc.userID, got, tc.wantParticipant)
			}
			if tc.wantParticipant {
				if got := c.Counterpart(tc.userID); got != tc.wantCounterpart {
					t.Fatalf("Counterpart(%d) = %d, want %d", tc.userID, got, tc.wantCounterpart)
				}
			}
		})
	}
}

func TestUserPublicOmitsPrivateFields(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	u := &User{
		ID:               3,
		Username:         "oto_galeri",
		Email:            "galeri@example.com",
		PasswordHash:     "hash",
		Phone:            "+905551112233",
		Role:             RoleCorporate,
		DisplayName:      "Oto Galeri",
		CompanyName:      "Oto Galeri Ltd.",
		IdentityVerified: true,
		CreatedAt:        created,
	}
	p := u.Public()
	if p.ID != 3 || p.Username != "oto_galeri" || p.Role != RoleCorporate {
		t.Fatalf("unexpected public profile: %+v", p)
	}
	if !p.IdentityVerified || p.CorporateVerified {
		t.Fatalf("verification flags = identity:%v corporate:%v", p.IdentityVerified, p.CorporateVerified)
	}
	if !p.MemberSince.Equal(created) {
		t.Fatalf("MemberSince = %v, want %v", p.MemberSince, created)
	}
}
