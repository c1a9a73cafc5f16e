package usecase

import (
	"context"
	"errors"
	"log/slog"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"
)

// Fetcher turns a history cursor into the set of newly added message ids.
type Fetcher struct {
	provider syncdomain.MailProvider
	logger   *slog.Logger
}

func NewFetcher(provider syncdomain.MailProvider, l *slog.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		logger:   logger.Component(l, "fetcher"),
	}
}

// FetchAddedMessageIDs lists history from fromCursor once and returns the
// added ids as a set. The provider may report the same id more than once.
func (f *Fetcher) FetchAddedMessageIDs(ctx context.Context, creds syncdomain.Credentials, fromCursor string) (map[string]struct{}, error) {
	ids, err := f.provider.ListHistory(ctx, creds, fromCursor)
	if err != nil {
		recordProviderError("history.list", err)
		return nil, err
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	f.logger.Debug("fetched history", "from_cursor", fromCursor, "records", len(ids), "unique", len(set))
	return set, nil
}

func recordProviderError(op string, err error) {
	kind := syncdomain.KindUnknown
	var pe *syncdomain.ProviderError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	metrics.ProviderErrorsTotal.WithLabelValues(op, string(kind)).Inc()
}
