// Package exchange предоставляет клиент API биржи для проверки депозитов по хэшу транзакции.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	depositRecordPath = "/v5/asset/deposit/query-record"
	defaultRecvWindow = "5000"

	// StatusSuccess обозначает депозит, зачисленный биржей.
	StatusSuccess = 3
)

// Client инкапсулирует подписанные HTTP-запросы к API биржи.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow string
	httpClient *http.Client
	now        func() time.Time
}

// DepositRecord описывает запись о депозите на стороне биржи.
type DepositRecord struct {
	Coin      string          `json:"coin"`
	Chain     string          `json:"chain"`
	Amount    decimal.Decimal `json:"amount"`
	TxID      string          `json:"txID"`
	ToAddress string          `json:"toAddress"`
	Status    int             `json:"status"`
}

// Confirmed сообщает, что биржа зачислила депозит.
func (r DepositRecord) Confirmed() bool {
	return r.Status == StatusSuccess
}

type depositRecordResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Rows []DepositRecord `json:"rows"`
	} `json:"result"`
}

// NewClient создаёт клиент биржи с указанными адресом и ключами API.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: defaultRecvWindow,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now: time.Now,
	}
}

// GetDepositRecord запрашивает запись о депозите по монете и хэшу транзакции.
// Возвращает nil без ошибки, если биржа ещё не видит транзакцию.
func (c *Client) GetDepositRecord(ctx context.Context, coin, txID string) (*DepositRecord, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("exchange client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	params := url.Values{}
	params.Set("coin", coin)
	params.Set("txID", txID)
	query := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+depositRecordPath+"?"+query, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, query))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result depositRecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	if result.RetCode != 0 {
		return nil, resp.StatusCode, 0, fmt.Errorf("exchange error %d: %s", result.RetCode, result.RetMsg)
	}

	for _, row := range result.Result.Rows {
		if strings.EqualFold(row.TxID, txID) {
			record := row
			return &record, resp.StatusCode, 0, nil
		}
	}

	return nil, resp.StatusCode, 0, nil
}

func (c *Client) sign(timestamp, query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + c.recvWindow + query))
	return hex.EncodeToString(mac.Sum(nil))
}
