package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Fi44er/email_attestation_bot/utils"
)

const DefaultKrakenURL = "https://api.kraken.com/0/public/Ticker?pair=XBTUSD"

var ErrRatesNotReady = errors.New("rates not ready yet")

type serviceError struct {
	StatusCode int
	Message    string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// The result key ("XXBTZUSD") is dynamic, hence the map.
type krakenResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

type krakenTicker struct {
	// c = last trade closed array(<price>, <lot volume>)
	LastTrade []string `json:"c"`
}

// Service converts USD amounts to satoshi at the last fetched BTC/USD price.
type Service struct {
	httpClient *http.Client
	url        string
	logger     *utils.Logger

	mu        sync.RWMutex
	btcUSD    float64
	updatedAt time.Time
}

func NewService(url string, logger *utils.Logger) *Service {
	if url == "" {
		url = DefaultKrakenURL
	}
	return &Service{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
		logger:     logger,
	}
}

// ToNative returns the satoshi amount worth usd, rounded to the nearest satoshi.
func (s *Service) ToNative(usd float64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.btcUSD <= 0 {
		return 0, ErrRatesNotReady
	}
	return int64(math.Round(utils.SatoshiPerBitcoin * usd / s.btcUSD)), nil
}

func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.btcUSD > 0
}

// Refresh fetches the current price. On failure the previous price stays.
func (s *Service) Refresh(ctx context.Context) error {
	price, err := s.getBTCUSDPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get BTC/USD price: %w", err)
	}

	s.mu.Lock()
	s.btcUSD = price
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.logger.Debugf("BTC/USD rate updated: %.2f", price)
	return nil
}

// Run refreshes the price every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.mu.RLock()
			age := time.Since(s.updatedAt)
			ready := s.btcUSD > 0
			s.mu.RUnlock()
			if ready {
				s.logger.Warnf("rates refresh failed, using price from %s ago: %v", age.Round(time.Second), err)
			} else {
				s.logger.Errorf("rates refresh failed, rates not ready: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) getBTCUSDPrice(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to Kraken failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &serviceError{
			StatusCode: resp.StatusCode,
			Message:    "bad response from Kraken",
		}
	}

	var data krakenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to parse Kraken response: %w", err)
	}
	if len(data.Error) > 0 {
		return 0, fmt.Errorf("Kraken API error: %v", data.Error)
	}

	tickerData, ok := data.Result["XXBTZUSD"]
	if !ok {
		return 0, fmt.Errorf("XXBTZUSD pair not found in Kraken response")
	}
	if len(tickerData.LastTrade) == 0 {
		return 0, fmt.Errorf("price data is missing in Kraken response")
	}

	price, err := strconv.ParseFloat(tickerData.LastTrade[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price format from Kraken: %w", err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price from Kraken: %v", price)
	}
	return price, nil
}
