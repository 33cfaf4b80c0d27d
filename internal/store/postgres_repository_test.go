package store

import (
	"regexp"
	"testing"

	"github.com/banqueapi/compte-service/internal/domain"
)

func TestGenerateNumeroCompte_Format(t *testing.T) {
	format := regexp.MustCompile(`^C\d{8}$`)
	for i := 0; i < 100; i++ {
		numero := generateNumeroCompte()
		if !format.MatchString(numero) {
			t.Fatalf("expected C + 8 digits, got %q", numero)
		}
	}
}

func TestSortColumns_CoverEveryAllowedSort(t *testing.T) {
	for _, sort := range []string{domain.SortDateCreation, domain.SortSolde, domain.SortTitulaire} {
		if _, ok := sortColumns[sort]; !ok {
			t.Fatalf("missing sort column mapping for %q", sort)
		}
	}
}
