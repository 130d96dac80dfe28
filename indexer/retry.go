// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/donorfinder/ai"
	"github.com/sethvargo/go-retry"
)

// withRetry runs operation, retrying transient failures with exponential
// backoff. maxRetries counts the retries after the first attempt.
// Cancellation and dimension mismatches are returned immediately.
func withRetry(ctx context.Context, logger *slog.Logger, maxRetries int, baseDelay time.Duration, operation func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(max(maxRetries, 0)), retry.WithJitterPercent(10, retry.NewExponential(baseDelay)))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !retryable(err) {
			return err
		}
		logger.Debug("operation failed, will retry", "attempt", attempt, "maxRetries", maxRetries, "err", err)
		return retry.RetryableError(err)
	})
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ai.ErrDimensionMismatch):
		return false
	}
	return true
}
