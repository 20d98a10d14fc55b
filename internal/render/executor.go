package render

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/providers/genai"
)

const (
	defaultAttemptTimeout = 120 * time.Second
	defaultRetryBackoff   = 800 * time.Millisecond
)

// Invoker performs one network attempt against a resolved endpoint.
type Invoker interface {
	Generate(ctx context.Context, endpoint string, body []byte) (*domain.GenerationOutcome, error)
}

// Executor drives one assembled request across an ordered credential pool,
// rotating to the next key on retryable failure. The request body never
// changes between attempts; only the credential and endpoint do.
type Executor struct {
	client         Invoker
	attemptTimeout time.Duration
	backoff        time.Duration
	logger         zerolog.Logger
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Client         Invoker
	AttemptTimeout time.Duration
	Backoff        time.Duration
	Logger         zerolog.Logger
}

func NewExecutor(opts ExecutorOptions) *Executor {
	attemptTimeout := opts.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	backoff := opts.Backoff
	if backoff < 0 {
		backoff = 0
	} else if backoff == 0 {
		backoff = defaultRetryBackoff
	}
	return &Executor{
		client:         opts.Client,
		attemptTimeout: attemptTimeout,
		backoff:        backoff,
		logger:         opts.Logger,
	}
}

// Execute makes at most len(pool) attempts. Non-retryable failures abort the
// rotation immediately; exhausting the pool surfaces the last attempt's error.
func (e *Executor) Execute(ctx context.Context, pool domain.KeyPool, body []byte) (*domain.GenerationOutcome, error) {
	if len(pool) == 0 {
		return nil, domain.NewConfigError("credential pool is empty")
	}

	var lastErr error
	for i, cred := range pool {
		endpoint, err := genai.ResolveEndpoint(cred.Gateway, cred.Model, cred.APIKey)
		if err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		outcome, err := e.client.Generate(attemptCtx, endpoint, body)
		cancel()
		if err == nil {
			if i > 0 {
				e.logger.Info().Int("attempt", i+1).Msg("render: generation succeeded after key rotation")
			}
			return outcome, nil
		}

		lastErr = err
		if !domain.Retryable(err) {
			e.logger.Warn().Err(err).Int("attempt", i+1).Msg("render: fatal generation failure")
			return nil, err
		}
		if i == len(pool)-1 {
			break
		}

		e.logger.Warn().Err(err).Int("attempt", i+1).Int("pool_size", len(pool)).Msg("render: retrying with next pooled key")
		select {
		case <-time.After(e.backoff):
		case <-ctx.Done():
			return nil, domain.NewTransportError(ctx.Err(), "generation canceled during retry backoff")
		}
	}
	return nil, lastErr
}
