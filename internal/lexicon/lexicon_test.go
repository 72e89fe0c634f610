package lexicon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-health/triage/internal/domain"
)

func fluOnly(t *testing.T) *Lexicon {
	t.Helper()
	lex, err := New([]domain.DiseaseRule{
		{
			Name:             "flu",
			Keywords:         []string{"demam", "batuk"},
			Symptoms:         []string{"Demam", "Batuk"},
			MedicationAdvice: "paracetamol",
			DoctorAdvice:     "istirahat",
		},
	}, domain.MatchSubstring)
	if err != nil {
		t.Fatalf("failed to create lexicon: %v", err)
	}
	return lex
}

func TestLexiconCreation(t *testing.T) {
	lex, err := Default(domain.MatchSubstring)
	if err != nil {
		t.Fatalf("failed to create default lexicon: %v", err)
	}

	if lex.Len() != len(BuiltinRules()) {
		t.Errorf("expected %d rules, got %d", len(BuiltinRules()), lex.Len())
	}
	if lex.Version() == "" {
		t.Error("expected a version")
	}
	if lex.Mode() != domain.MatchSubstring {
		t.Errorf("expected substring mode, got %s", lex.Mode())
	}
}

func TestBuiltinKeywordsAreDisjoint(t *testing.T) {
	rules := BuiltinRules()
	for i, a := range rules {
		for j, b := range rules {
			if i == j {
				continue
			}
			for _, ka := range a.Keywords {
				for _, kb := range b.Keywords {
					if strings.Contains(ka, kb) {
						t.Errorf("keyword %q of %s contains keyword %q of %s", ka, a.Name, kb, b.Name)
					}
				}
			}
		}
	}
}

func TestDetect(t *testing.T) {
	lex, _ := Default(domain.MatchSubstring)

	t.Run("NoKeywords", func(t *testing.T) {
		for _, text := range []string{"", "   ", "saya merasa sehat hari ini", "hello world"} {
			if got := lex.Detect(text); len(got) != 0 {
				t.Errorf("expected no matches for %q, got %v", text, got)
			}
		}
	})

	t.Run("EmptyIsNotNil", func(t *testing.T) {
		if got := lex.Detect(""); got == nil {
			t.Error("expected empty slice, got nil")
		}
	})

	t.Run("SingleRule", func(t *testing.T) {
		for _, rule := range BuiltinRules() {
			text := "keluhan saya " + rule.Keywords[0] + " sejak kemarin"
			got := lex.Detect(text)
			if len(got) != 1 {
				t.Fatalf("expected 1 match for %q, got %d", text, len(got))
			}
			if got[0].Disease != rule.Name {
				t.Errorf("expected %s, got %s", rule.Name, got[0].Disease)
			}
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		got := lex.Detect("Saya DEMAM Tinggi")
		if len(got) != 1 || got[0].Disease != "flu" {
			t.Errorf("expected flu, got %v", got)
		}
	})

	t.Run("DeclarationOrder", func(t *testing.T) {
		// diare is mentioned first but flu is declared first.
		got := lex.Detect("sudah diare dua hari dan sekarang demam")
		if len(got) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(got))
		}
		if got[0].Disease != "flu" || got[1].Disease != "diare" {
			t.Errorf("expected [flu diare], got [%s %s]", got[0].Disease, got[1].Disease)
		}
	})

	t.Run("SubstringInsideWord", func(t *testing.T) {
		got := lex.Detect("riwayat diarekronis")
		if len(got) != 1 || got[0].Disease != "diare" {
			t.Errorf("expected substring match on diare, got %v", got)
		}
	})

	t.Run("SnapshotFields", func(t *testing.T) {
		got := lex.Detect("batuk")
		if len(got) != 1 {
			t.Fatalf("expected 1 match, got %d", len(got))
		}
		flu := BuiltinRules()[0]
		if got[0].MedicationAdvice != flu.MedicationAdvice {
			t.Errorf("expected medication advice %q, got %q", flu.MedicationAdvice, got[0].MedicationAdvice)
		}
		if got[0].DoctorAdvice != flu.DoctorAdvice {
			t.Errorf("expected doctor advice %q, got %q", flu.DoctorAdvice, got[0].DoctorAdvice)
		}

		got[0].Symptoms[0] = "mutated"
		again := lex.Detect("batuk")
		if again[0].Symptoms[0] == "mutated" {
			t.Error("mutating a match must not alter the lexicon")
		}
	})
}

func TestScenarioFlu(t *testing.T) {
	lex := fluOnly(t)

	got := lex.Detect("saya demam dan batuk")
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].Disease != "flu" {
		t.Errorf("expected flu, got %s", got[0].Disease)
	}
}

func TestWordMode(t *testing.T) {
	lex, err := Default(domain.MatchWord)
	if err != nil {
		t.Fatalf("failed to create lexicon: %v", err)
	}

	t.Run("IgnoresFragments", func(t *testing.T) {
		if got := lex.Detect("riwayat diarekronis"); len(got) != 0 {
			t.Errorf("expected no match in word mode, got %v", got)
		}
	})

	t.Run("MatchesWholeWords", func(t *testing.T) {
		got := lex.Detect("Diare, sejak pagi!")
		if len(got) != 1 || got[0].Disease != "diare" {
			t.Errorf("expected diare, got %v", got)
		}
	})

	t.Run("MultiWordKeyword", func(t *testing.T) {
		got := lex.Detect("tiba-tiba sesak   napas")
		if len(got) != 1 || got[0].Disease != "ispa" {
			t.Errorf("expected ispa, got %v", got)
		}
	})
}

func TestCustomExpression(t *testing.T) {
	lex, err := New([]domain.DiseaseRule{
		{
			Name:       "flu",
			Keywords:   []string{"demam", "batuk"},
			Expression: `"demam" in tokens && "batuk" in tokens`,
		},
	}, domain.MatchSubstring)
	if err != nil {
		t.Fatalf("failed to create lexicon: %v", err)
	}

	if got := lex.Detect("demam saja"); len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
	if got := lex.Detect("demam dan batuk"); len(got) != 1 {
		t.Errorf("expected 1 match, got %v", got)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		rules []domain.DiseaseRule
		mode  domain.MatchMode
	}{
		{"EmptyName", []domain.DiseaseRule{{Keywords: []string{"a"}}}, domain.MatchSubstring},
		{"NoKeywords", []domain.DiseaseRule{{Name: "flu"}}, domain.MatchSubstring},
		{"BlankKeywords", []domain.DiseaseRule{{Name: "flu", Keywords: []string{" ", ""}}}, domain.MatchSubstring},
		{"DuplicateName", []domain.DiseaseRule{
			{Name: "flu", Keywords: []string{"a"}},
			{Name: "flu", Keywords: []string{"b"}},
		}, domain.MatchSubstring},
		{"UnknownMode", []domain.DiseaseRule{{Name: "flu", Keywords: []string{"a"}}}, "fuzzy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rules, tt.mode)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	t.Run("InvalidExpression", func(t *testing.T) {
		_, err := New([]domain.DiseaseRule{{Name: "flu", Keywords: []string{"a"}, Expression: "this is not CEL !!!"}}, domain.MatchSubstring)
		if err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		_, err := New([]domain.DiseaseRule{{Name: "flu", Keywords: []string{"a"}, Expression: "size(tokens)"}}, domain.MatchSubstring)
		if err == nil {
			t.Error("expected error for non-bool expression")
		}
	})
}

func TestKeywordsAreCaseFolded(t *testing.T) {
	lex, err := New([]domain.DiseaseRule{{Name: "flu", Keywords: []string{"  DEMAM "}}}, domain.MatchSubstring)
	if err != nil {
		t.Fatalf("failed to create lexicon: %v", err)
	}

	if got := lex.Detect("demam"); len(got) != 1 {
		t.Errorf("expected 1 match, got %v", got)
	}
	if kw := lex.Rules()[0].Keywords[0]; kw != "demam" {
		t.Errorf("expected folded keyword 'demam', got %q", kw)
	}
}

func TestVersion(t *testing.T) {
	a, _ := Default(domain.MatchSubstring)
	b, _ := Default(domain.MatchSubstring)
	c, _ := Default(domain.MatchWord)

	if a.Version() != b.Version() {
		t.Error("identical lexicons should share a version")
	}
	if a.Version() == c.Version() {
		t.Error("different modes should produce different versions")
	}
}

func writeLexicon(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write lexicon: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "valid.json")
		writeLexicon(t, path, `{"rules":[{"name":"tipes","keywords":["tifus"],"symptoms":["Demam naik turun"]}]}`)

		lex, err := LoadFile(path, domain.MatchSubstring)
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if got := lex.Detect("dokter bilang tifus"); len(got) != 1 || got[0].Disease != "tipes" {
			t.Errorf("expected tipes, got %v", got)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		writeLexicon(t, path, `{"rules":`)

		if _, err := LoadFile(path, domain.MatchSubstring); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		writeLexicon(t, path, `{"rules":[]}`)

		if _, err := LoadFile(path, domain.MatchSubstring); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(dir, "nope.json"), domain.MatchSubstring); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.json")
	writeLexicon(t, path, `{"rules":[{"name":"flu","keywords":["demam"]}]}`)

	cfg := domain.LexiconConfig{Path: path, Mode: domain.MatchSubstring}
	lex, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	reg := NewRegistry(lex, cfg)

	t.Run("Reload", func(t *testing.T) {
		held := reg.Current()

		writeLexicon(t, path, `{"rules":[{"name":"flu","keywords":["demam"]},{"name":"maag","keywords":["mual"]}]}`)
		if _, err := reg.Reload(); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}

		if reg.Current().Len() != 2 {
			t.Errorf("expected 2 rules after reload, got %d", reg.Current().Len())
		}
		if held.Len() != 1 {
			t.Error("previously held lexicon must not change")
		}
	})

	t.Run("ReloadKeepsPreviousOnError", func(t *testing.T) {
		before := reg.Current()
		writeLexicon(t, path, `not json`)

		if _, err := reg.Reload(); err == nil {
			t.Fatal("expected reload error")
		}
		if reg.Current() != before {
			t.Error("failed reload must keep the current lexicon")
		}
	})

	t.Run("BuiltinHasNoSource", func(t *testing.T) {
		builtin, _ := Default(domain.MatchSubstring)
		r := NewRegistry(builtin, domain.LexiconConfig{})
		if _, err := r.Reload(); !errors.Is(err, ErrNoSource) {
			t.Errorf("expected ErrNoSource, got %v", err)
		}
	})
}

func TestRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.json")
	writeLexicon(t, path, `{"rules":[{"name":"flu","keywords":["demam"]}]}`)

	cfg := domain.LexiconConfig{Path: path, Mode: domain.MatchSubstring, Watch: true}
	lex, _ := Load(cfg)
	reg := NewRegistry(lex, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeLexicon(t, path, `{"rules":[{"name":"flu","keywords":["demam"]},{"name":"cacar","keywords":["cacar"]}]}`)

	deadline := time.After(2 * time.Second)
	for reg.Current().Len() != 2 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for lexicon reload")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}
