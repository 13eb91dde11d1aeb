// Package payment 是支付网关（YooKassa 风格 REST API）的 HTTP 客户端。
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 网关侧支付状态。
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// maxErrorBody 错误响应体最多保留的字节数，用于排查。
const maxErrorBody = 4 << 10

// APIError 网关返回非 2xx 时的原始响应。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment provider returned %d: %s", e.StatusCode, e.Body)
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// MinorUnits 把 "1000.00" 形式的金额换算为分。
func (a Amount) MinorUnits() (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(a.Value))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", a.Value, err)
	}
	return d.Shift(2).IntPart(), nil
}

// FormatMinor 把分格式化为网关要求的两位小数字符串。
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Payment 网关的支付对象（只取本服务关心的字段）。
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ConfirmationURL 返回跳转到托管支付页的地址。
func (p Payment) ConfirmationURL() string {
	if p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

type CreatePaymentInput struct {
	AmountMinor    int64
	Currency       string
	ReturnURL      string
	Description    string
	IdempotenceKey string
	Metadata       map[string]string
}

type createPaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Client 通过 HTTP Basic（shopId/secretKey）访问网关。
type Client struct {
	baseURL   string
	shopID    string
	secretKey string
	http      *http.Client
}

func NewClient(baseURL, shopID, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		shopID:    shopID,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// CreatePayment 创建支付，幂等键由调用方保证同一订单稳定不变。
func (c *Client) CreatePayment(ctx context.Context, in CreatePaymentInput) (Payment, error) {
	if in.AmountMinor <= 0 {
		return Payment{}, fmt.Errorf("amount must be > 0")
	}
	if in.IdempotenceKey == "" {
		return Payment{}, fmt.Errorf("idempotence key is required")
	}

	body, err := json.Marshal(createPaymentRequest{
		Amount:  Amount{Value: FormatMinor(in.AmountMinor), Currency: in.Currency},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: in.ReturnURL,
		},
		Description: in.Description,
		Metadata:    in.Metadata,
	})
	if err != nil {
		return Payment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Payment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", in.IdempotenceKey)

	var out Payment
	if err := c.do(req, &out); err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return out, nil
}

// GetPayment 查询支付的权威状态。
func (c *Client) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("payment id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return Payment{}, err
	}

	var out Payment
	if err := c.do(req, &out); err != nil {
		return Payment{}, fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
