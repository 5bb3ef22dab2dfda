// Package barcode issues the unique box identifiers printed as Code 128 labels.
//
// A token has the form PREFIX-SKU-SEQ-SUFFIX, e.g. WID-WID-1-0003-K7Q2, and
// only ever contains A-Z, 0-9 and '-'. Uniqueness is optimistic: a candidate
// is checked against the persisted boxes and inventory, then claimed with an
// expiring reservation. Losing either step regenerates the suffix, up to
// MaxAttempts times.
package barcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxAttempts bounds suffix regeneration per box
	DefaultMaxAttempts = 5

	fallbackPrefix = "BOX"
	fallbackSKU    = "NOSKU"
	prefixLen      = 3
	suffixLen      = 4
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxParallel caps concurrent uniqueness lookups in GenerateBatch
	maxParallel = 8
)

// Checker reports whether a barcode has already been persisted
type Checker interface {
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
}

// Claimer reserves a barcode for a while so concurrent generators cannot both
// see it as free. Claim returns false if someone else holds it.
type Claimer interface {
	Claim(ctx context.Context, barcode, owner string) (bool, error)
}

// SuffixFunc produces the random part of a token
type SuffixFunc func() (string, error)

// Generator issues unique barcodes
type Generator struct {
	checker     Checker
	claimer     Claimer
	maxAttempts int
	suffix      SuffixFunc
	logger      *logger.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithMaxAttempts overrides DefaultMaxAttempts
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithSuffixFunc replaces the random suffix source
func WithSuffixFunc(fn SuffixFunc) Option {
	return func(g *Generator) {
		g.suffix = fn
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(g *Generator) {
		g.logger = log
	}
}

// NewGenerator creates a generator. claimer may be nil, in which case only
// the persisted set is consulted.
func NewGenerator(checker Checker, claimer Claimer, opts ...Option) *Generator {
	g := &Generator{
		checker:     checker,
		claimer:     claimer,
		maxAttempts: DefaultMaxAttempts,
		suffix:      RandomSuffix,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type ownerKey struct{}

// WithOwner tags ctx with the claim owner (usually the draft session ID)
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func ownerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey{}).(string); ok && owner != "" {
		return owner
	}
	return "anonymous"
}

// Generate issues one barcode for box number seq
func (g *Generator) Generate(ctx context.Context, prefix, sku string, seq int) (string, error) {
	prefix = normalizePrefix(prefix)
	sku = NormalizeSKU(sku)
	owner := ownerFrom(ctx)

	var candidate string
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		suffix, err := g.suffix()
		if err != nil {
			return "", errors.Wrap(err, "INTERNAL_ERROR", "failed to generate barcode suffix", http.StatusInternalServerError)
		}
		candidate = Compose(prefix, sku, seq, suffix)

		free, err := g.isFree(ctx, candidate, owner)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}

		g.logger.Debug().
			Str("barcode", candidate).
			Int("attempt", attempt).
			Msg("barcode collision, regenerating suffix")
	}

	g.logger.Warn().
		Str("last_candidate", candidate).
		Int("attempts", g.maxAttempts).
		Msg("barcode generation exhausted")
	return "", errors.GenerationExhausted(g.maxAttempts, candidate)
}

func (g *Generator) isFree(ctx context.Context, candidate, owner string) (bool, error) {
	exists, err := g.checker.BarcodeExists(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("failed to check barcode %s: %w", candidate, err)
	}
	if exists {
		return false, nil
	}
	if g.claimer == nil {
		return true, nil
	}
	claimed, err := g.claimer.Claim(ctx, candidate, owner)
	if err != nil {
		return false, fmt.Errorf("failed to claim barcode %s: %w", candidate, err)
	}
	return claimed, nil
}

// GenerateBatch issues count barcodes with sequence numbers start..start+count-1.
// Units run in parallel and each does its own check-then-claim. The result
// is ordered by sequence. Any failure fails the whole batch.
func (g *Generator) GenerateBatch(ctx context.Context, prefix, sku string, start, count int) ([]string, error) {
	if count < 1 {
		return nil, errors.ValidationField("count", "must be at least 1")
	}

	codes := make([]string, count)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallel)

	for i := 0; i < count; i++ {
		i := i
		eg.Go(func() error {
			code, err := g.Generate(egCtx, prefix, sku, start+i)
			if err != nil {
				return err
			}
			codes[i] = code
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return codes, nil
}

// Prefix derives the 3-character prefix from a product category or name:
// non-alphanumerics are stripped and the rest upper-cased. Falls back to BOX.
func Prefix(categoryOrName string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(categoryOrName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == prefixLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return fallbackPrefix
	}
	return b.String()
}

func normalizePrefix(prefix string) string {
	return Prefix(prefix)
}

// NormalizeSKU upper-cases sku and drops anything outside A-Z, 0-9 and '-'
func NormalizeSKU(sku string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(sku) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallbackSKU
	}
	return out
}

// Compose joins the token parts
func Compose(prefix, sku string, seq int, suffix string) string {
	return fmt.Sprintf("%s-%s-%04d-%s", prefix, sku, seq, suffix)
}

// RandomSuffix returns suffixLen characters drawn from A-Z0-9 with crypto/rand
func RandomSuffix() (string, error) {
	buf := make([]byte, suffixLen)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = suffixAlphabet[n.Int64()]
	}
	return string(buf), nil
}
