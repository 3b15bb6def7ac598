package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_FoldsTurkishLetters(t *testing.T) {
	cases := map[string]string{
		"ŞARJLI":             "sarjli",
		"şarjlı":             "sarjli",
		"Havalı El Aletleri": "havali el aletleri",
		"İSTANBUL":           "istanbul",
		"IĞDIR":              "igdir",
		"Çöğüş":              "cogus",
		"i\u0307ndirim":      "indirim", // "i" + combining dot above
		"":                   "",
		"Sarjli Matkap Seti": "sarjli matkap seti",
		"1/2\" Somun Sıkma":  "1/2\" somun sikma",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalize_UpperAndLowerAgree(t *testing.T) {
	assert.Equal(t, Normalize("ŞARJLI"), Normalize("şarjlı"))
	assert.Equal(t, "sarjli", Normalize("ŞARJLI"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"ŞARJLI", "şarjlı", "İzmir", "ISPARTA", "Ağaç Kesme", "ÖZEL FİYAT",
		"Somun Sıkma, Havalı", "mixed Case ÇÇ çç", "ǅemal", "ΣΊΣΥΦΟΣ", "plain ascii",
		"i̇", "  spaced  out  ", "emoji 🔧 tools",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)
	}
}

func TestLower_KeepsSpecialLetters(t *testing.T) {
	assert.Equal(t, "şarjlı matkap", Lower("ŞARJLı Matkap"))
	assert.Equal(t, "", Lower(""))
}

func TestCaseKey_IgnoresCaseButNotDiacritics(t *testing.T) {
	assert.Equal(t, CaseKey("Şartlandırıcı"), CaseKey("ŞARTLANDIRICI"))
	assert.Equal(t, CaseKey("çelik"), CaseKey("ÇELİK"))
	assert.Equal(t, "filtre", CaseKey("FILTRE"))
	assert.NotEqual(t, CaseKey("Çelik"), CaseKey("Celik"))
	assert.NotEqual(t, CaseKey("Göz"), CaseKey("Goz"))
	assert.Equal(t, "", CaseKey(""))
}

func TestLabel_CollapsesSeparators(t *testing.T) {
	assert.Equal(t, "somun sikma havali", Label("Somun Sıkma, Havalı"))
	assert.Equal(t, "somun sikma havali", Label("  Somun  Sıkma ,, Havalı "))
	assert.Equal(t, "somunsikmahavali", Label("SomunSikmaHavali"))
	assert.Equal(t, "", Label(" , , "))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "elaletleri", Compact("el aletleri"))
	assert.Equal(t, "elaletleri", Compact(" el\t aletleri\n"))
}

func TestFoldPairs_ReturnsCopy(t *testing.T) {
	pairs := FoldPairs()
	assert.Len(t, pairs, 12)
	pairs[0].To = "x"
	assert.Equal(t, "s", FoldPairs()[0].To)
}
