package lexicon

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/opensource-health/triage/internal/domain"
)

// ErrNoSource is returned by Reload when the registry has no lexicon file.
var ErrNoSource = errors.New("lexicon has no file source")

// Registry publishes the current lexicon. A reload swaps in a whole new
// Lexicon; callers holding the previous one keep using it unchanged.
type Registry struct {
	current atomic.Pointer[Lexicon]
	cfg     domain.LexiconConfig
}

// NewRegistry creates a registry serving lex. cfg.Path, if set, is the
// source used by Reload and Watch.
func NewRegistry(lex *Lexicon, cfg domain.LexiconConfig) *Registry {
	r := &Registry{cfg: cfg}
	r.current.Store(lex)
	return r
}

// Current returns the lexicon in effect.
func (r *Registry) Current() *Lexicon {
	return r.current.Load()
}

// Swap replaces the current lexicon.
func (r *Registry) Swap(lex *Lexicon) {
	old := r.current.Swap(lex)
	if old == nil || old.Version() != lex.Version() {
		slog.Info("lexicon swapped",
			"version", lex.Version(),
			"rules_count", lex.Len(),
			"mode", lex.Mode(),
		)
	}
}

// Reload re-reads the lexicon file. On error the current lexicon stays in place.
func (r *Registry) Reload() (*Lexicon, error) {
	if r.cfg.Path == "" {
		return nil, ErrNoSource
	}

	lex, err := LoadFile(r.cfg.Path, r.cfg.Mode)
	if err != nil {
		return nil, err
	}

	r.Swap(lex)
	return lex, nil
}

// Source returns the lexicon file path, empty for the built-in lexicon.
func (r *Registry) Source() string {
	return r.cfg.Path
}
