// Package currency resolves exchange rates between transaction, ticker and
// portfolio base currencies.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source pairs a rate provider with a name for logs and the sources endpoint
type Source[T any] struct {
	Name     string
	Provider T
}

// Service resolves historical and current rates through ordered fallback
// chains. Historical ("as of transaction date") and current ("as of now")
// lookups use separate chains and are never mixed.
type Service struct {
	historical []Source[domain.HistoricalRateProvider]
	current    []Source[domain.CurrentRateProvider]
	log        zerolog.Logger
}

// NewService creates a rate service. Sources are tried in the given order.
func NewService(
	historical []Source[domain.HistoricalRateProvider],
	current []Source[domain.CurrentRateProvider],
	log zerolog.Logger,
) *Service {
	return &Service{
		historical: historical,
		current:    current,
		log:        log.With().Str("service", "currency").Logger(),
	}
}

// HistoricalSources returns the historical chain names in fallback order
func (s *Service) HistoricalSources() []string {
	out := make([]string, 0, len(s.historical))
	for _, src := range s.historical {
		out = append(out, src.Name)
	}
	return out
}

// CurrentSources returns the current chain names in fallback order
func (s *Service) CurrentSources() []string {
	out := make([]string, 0, len(s.current))
	for _, src := range s.current {
		out = append(out, src.Name)
	}
	return out
}

// HistoricalRate returns the multiplier converting one unit of from into
// to on date. Identity when the currencies match.
func (s *Service) HistoricalRate(ctx context.Context, from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	var errs []error
	for _, src := range s.historical {
		rate, err := src.Provider.HistoricalRate(ctx, from, to, date)
		if err == nil && rate.IsPositive() {
			return rate, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive rate %s", rate)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, ctxErr
		}
		s.log.Debug().Err(err).Str("source", src.Name).Str("pair", pair(from, to)).Msg("Historical rate source failed")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
	}

	return decimal.Zero, fmt.Errorf("%w: %s on %s: %w",
		domain.ErrRateUnavailable, pair(from, to), date.Format("2006-01-02"), errors.Join(errs...))
}

// CurrentRate returns today's multiplier converting from into to
func (s *Service) CurrentRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	var errs []error
	for _, src := range s.current {
		rate, err := src.Provider.CurrentRate(ctx, from, to)
		if err == nil && rate.IsPositive() {
			return rate, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive rate %s", rate)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, ctxErr
		}
		s.log.Debug().Err(err).Str("source", src.Name).Str("pair", pair(from, to)).Msg("Current rate source failed")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
	}

	return decimal.Zero, fmt.Errorf("%w: %s: %w", domain.ErrRateUnavailable, pair(from, to), errors.Join(errs...))
}

func pair(from, to domain.Currency) string {
	return string(from) + "/" + string(to)
}
