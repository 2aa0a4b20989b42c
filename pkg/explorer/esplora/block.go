package esplora

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

func (e *esplora) GetBlockHeight(ctx context.Context) (int64, error) {
	resp, err := e.request(ctx, http.MethodGet, "/blocks/tip/height", "", nil)
	if err != nil {
		return -1, err
	}

	blockHeight, err := strconv.ParseInt(strings.TrimSpace(resp), 10, 64)
	if err != nil {
		return -1, err
	}

	return blockHeight, nil
}

func (e *esplora) GetFeeEstimates(ctx context.Context) (map[int]float64, error) {
	resp, err := e.request(ctx, http.MethodGet, "/fee-estimates", "", nil)
	if err != nil {
		return nil, err
	}

	var estimates map[string]float64
	if err := json.Unmarshal([]byte(resp), &estimates); err != nil {
		return nil, err
	}

	feeEstimates := make(map[int]float64, len(estimates))
	for target, rate := range estimates {
		blocks, err := strconv.Atoi(target)
		if err != nil {
			return nil, err
		}
		feeEstimates[blocks] = rate
	}
	return feeEstimates, nil
}
