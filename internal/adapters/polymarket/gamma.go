package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// FetchEndTimes returns market end times keyed by lower-case condition ID.
// Failed batches are skipped; missing markets are absent from the map.
func (c *Client) FetchEndTimes(ctx context.Context, conditionIDs []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(conditionIDs))
	failed := 0

	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(conditionIDs))
		batch := conditionIDs[i:end]

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			failed++
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			if t := gammaEndTime(gm); !t.IsZero() {
				result[strings.ToLower(gm.ConditionID)] = t
			}
		}
	}

	if failed > 0 && len(result) == 0 {
		return nil, fmt.Errorf("gamma.FetchEndTimes: all %d batches failed", failed)
	}
	return result, nil
}
