package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"İSTANBUL", "istanbul"},
		{"ISPARTA", "isparta"},
		{"Şişli  Çağlayan", "sisli caglayan"},
		{"Göztepe Üsküdar", "goztepe uskudar"},
		{"  Volkswagen\tPassat\n1.6 TDI ", "volkswagen passat 1.6 tdi"},
		{"Iğdır", "igdir"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestFoldIsIdempotent(t *testing.T) {
	once := Fold("Kadıköy'de Satılık Daire")
	assert.Equal(t, once, Fold(once))
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Otomobil":                 "otomobil",
		"Emlak & Konut":            "emlak-konut",
		"  Arazi, Bahçe / Tarla  ": "arazi-bahce-tarla",
		"İş Makineleri":            "is-makineleri",
		"BMW 3 Serisi (E90)":       "bmw-3-serisi-e90",
		"---":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), "Slug(%q)", in)
	}
}

func TestTermsDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"temiz", "aile", "araci"}, Terms("Temiz aile aracı TEMİZ"))
	assert.Empty(t, Terms("   "))
}
