package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"season_pass/internal/auth"
	"season_pass/internal/model"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type reconcileData struct {
	PaymentID        string `json:"payment_id"`
	Status           string `json:"status"`
	OrderID          uint   `json:"order_id"`
	Processed        bool   `json:"processed"`
	AlreadyProcessed bool   `json:"already_processed"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	secret := flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "secret used to mint the test session token")
	userID := flag.Uint("user", 1, "buyer user id")
	role := flag.String("role", string(model.RolePlayer), "buyer role")
	sku := flag.String("sku", "SEASON4", "product sku for checkout")
	paymentID := flag.String("payment", "", "existing payment id; empty creates a new checkout")
	wait := flag.Duration("wait", 3*time.Minute, "how long to wait for the payment to succeed")

	// 对账风暴：同一支付单并发查单 + 回调，验证只发一张季票
	total := flag.Int("n", 200, "total reconcile requests")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "jwt secret is required (-jwt-secret or JWT_SECRET)")
		os.Exit(2)
	}
	token, err := auth.NewIssuer(*secret, time.Hour).Issue(*userID, model.Role(*role))
	if err != nil {
		panic(fmt.Sprintf("mint token: %v", err))
	}
	client := &http.Client{Timeout: 15 * time.Second}

	pid := *paymentID
	if pid == "" {
		var co struct {
			OrderID         uint   `json:"order_id"`
			PaymentID       string `json:"payment_id"`
			ConfirmationURL string `json:"confirmation_url"`
		}
		if err := doPOST(client, *baseURL+"/api/checkout", map[string]any{"sku": *sku}, token, &co); err != nil {
			panic(fmt.Sprintf("checkout failed: %v", err))
		}
		pid = co.PaymentID
		fmt.Printf("order #%d created, pay here: %s\n", co.OrderID, co.ConfirmationURL)
		if err := waitSucceeded(client, *baseURL, token, pid, *wait); err != nil {
			panic(err)
		}
	}

	before, err := countBattlepasses(client, *baseURL, token)
	if err != nil {
		panic(fmt.Sprintf("list battlepasses: %v", err))
	}

	fmt.Printf("start reconcile storm: payment=%s requests=%d concurrency=%d\n", pid, *total, *concurrency)
	results := runStorm(client, *baseURL, token, pid, *total, *concurrency)
	printSummary("reconcile", results)

	processed, already := 0, 0
	for _, r := range results {
		var d reconcileData
		if r.Err != nil || r.Status != http.StatusOK || decodeData(r.Body, &d) != nil {
			continue
		}
		if d.Processed {
			processed++
		}
		if d.AlreadyProcessed {
			already++
		}
	}
	fmt.Printf("processed=%d already_processed=%d\n", processed, already)

	after, err := countBattlepasses(client, *baseURL, token)
	if err != nil {
		fmt.Println("battlepass check err:", err)
		return
	}
	fmt.Printf("battlepasses issued during storm: %d\n", after-before)
	if processed > 1 || after-before > 1 {
		fmt.Println("FAIL: payment fulfilled more than once")
		os.Exit(1)
	}
}

// runStorm 一半走查单接口，一半模拟网关回调。
func runStorm(client *http.Client, baseURL, token, paymentID string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			if idx%2 == 0 {
				results[idx] = postOnce(client, baseURL+"/api/payments/status", token, map[string]any{"payment_id": paymentID})
				return
			}
			results[idx] = postOnce(client, baseURL+"/api/payments/webhook", "", map[string]any{
				"type":   "notification",
				"event":  "payment.succeeded",
				"object": map[string]any{"id": paymentID},
			})
		}(i)
	}

	wg.Wait()
	return results
}

func waitSucceeded(client *http.Client, baseURL, token, paymentID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r := postOnce(client, baseURL+"/api/payments/status", token, map[string]any{"payment_id": paymentID})
		var d reconcileData
		if r.Err == nil && r.Status == http.StatusOK && decodeData(r.Body, &d) == nil {
			switch d.Status {
			case "succeeded":
				return nil
			case "canceled":
				return fmt.Errorf("payment %s was canceled", paymentID)
			}
		}
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("payment %s did not succeed within %s", paymentID, timeout)
}

func postOnce(client *http.Client, url, token string, body any) Result {
	b, _ := json.Marshal(body)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(raw)}
}

func decodeData(body string, out any) error {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 401, 403, 404, 409, 429, 500, 502} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doPOST 发送 POST 请求并解出 data。
func doPOST(client *http.Client, url string, body any, token string, out any) error {
	r := postOnce(client, url, token, body)
	if r.Err != nil {
		return r.Err
	}
	if r.Status >= 300 {
		return fmt.Errorf("status=%d body=%s", r.Status, r.Body)
	}
	return decodeData(r.Body, out)
}

// countBattlepasses 查询当前用户的季票数量。
func countBattlepasses(client *http.Client, baseURL, token string) (int, error) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/api/me/battlepasses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var list []json.RawMessage
	if err := decodeData(string(b), &list); err != nil {
		return 0, err
	}
	return len(list), nil
}
