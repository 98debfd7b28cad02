package services

import (
	"reflect"
	"testing"
)

func TestNameTokens(t *testing.T) {
	got := nameTokens("Diego Cicotoste")
	want := []string{
		"diego", "di", "die", "dieg",
		"cicotoste", "ci", "cic", "cico", "cicot", "cicots",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("nameTokens(Diego Cicotoste) = %v, want %v", got, want)
	}
}

func TestNameTokensShortAndMessyNames(t *testing.T) {
	if got := nameTokens("Al"); !reflect.DeepEqual(got, []string{"al"}) {
		t.Errorf("two-letter name should yield just itself, got %v", got)
	}
	if got := nameTokens(""); len(got) != 0 {
		t.Errorf("empty name should yield no tokens, got %v", got)
	}
	// Punctuation splits into separate words.
	got := nameTokens("Ana-María O'Neil")
	for _, tok := range got {
		if tok == "" {
			t.Fatalf("no empty tokens expected, got %v", got)
		}
	}
}

func TestRankCardsPrefixesFirst(t *testing.T) {
	records := []UserRecord{
		{UID: "1", FullName: "Diego Cicotoste", FullNameLower: "diego cicotoste", Slug: "diego-cicotoste"},
		{UID: "2", FullName: "San Diego Club", FullNameLower: "san diego club", Slug: "san-diego-club"},
		{UID: "3", FullName: "Diedre Moss", FullNameLower: "diedre moss", Slug: "diedre-moss"},
		{UID: "4", FullName: "Unrelated", FullNameLower: "unrelated"},
	}

	cards := rankCards(records, "diego", 8)
	if len(cards) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(cards), cards)
	}
	if cards[0].ID != "1" {
		t.Errorf("prefix match should rank first, got %v", cards)
	}
	if cards[1].ID != "2" {
		t.Errorf("substring match should rank second, got %v", cards)
	}
}

func TestRankCardsDerivesMissingSlug(t *testing.T) {
	records := []UserRecord{
		{UID: "1", FullName: "Ana Silva", FullNameLower: "ana silva"},
	}
	cards := rankCards(records, "ana", 8)
	if len(cards) != 1 || cards[0].Slug != "ana-silva" {
		t.Errorf("missing slug should be derived, got %v", cards)
	}
}

func TestRankCardsHonorsLimit(t *testing.T) {
	var records []UserRecord
	for i := 0; i < 20; i++ {
		records = append(records, UserRecord{UID: "u", FullName: "Ana", FullNameLower: "ana"})
	}
	if cards := rankCards(records, "ana", 8); len(cards) != 8 {
		t.Errorf("expected limit of 8, got %d", len(cards))
	}
}
