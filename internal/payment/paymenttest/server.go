// Package paymenttest 提供内存版支付网关，供各包测试使用。
package paymenttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"season_pass/internal/payment"
)

const (
	ShopID    = "test-shop"
	SecretKey = "test-secret"
)

// Server 模拟网关：创建支付（按 Idempotence-Key 去重）、查询支付、人工改状态。
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	payments  map[string]payment.Payment
	byKey     map[string]string
	failCode  int
	failBody  string
	getCalls  int
	createReq []CreateRecord
}

// CreateRecord 记录收到的创建请求，供断言。
type CreateRecord struct {
	IdempotenceKey string
	Amount         payment.Amount
	Metadata       map[string]string
	ReturnURL      string
}

func NewServer() *Server {
	s := &Server{
		payments: map[string]payment.Payment{},
		byKey:    map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/payments", s.handleCreate)
	mux.HandleFunc("/v3/payments/", s.handleGet)
	s.Server = httptest.NewServer(mux)
	return s
}

// BaseURL 网关 API 前缀。
func (s *Server) BaseURL() string { return s.URL + "/v3" }

// Client 返回指向本服务的真实客户端。
func (s *Server) Client() *payment.Client {
	return payment.NewClient(s.BaseURL(), ShopID, SecretKey, 2*time.Second)
}

// SetStatus 模拟买家在托管页完成（或取消）支付。
func (s *Server) SetStatus(paymentID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return
	}
	p.Status = status
	p.Paid = status == payment.StatusSucceeded
	s.payments[paymentID] = p
}

// SetAmount 篡改网关侧金额，用于金额不一致场景。
func (s *Server) SetAmount(paymentID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return
	}
	p.Amount.Value = value
	s.payments[paymentID] = p
}

// Put 直接放入一笔支付（不经过创建接口）。
func (s *Server) Put(p payment.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
}

// FailCreate 让之后的创建请求返回指定错误。
func (s *Server) FailCreate(code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCode = code
	s.failBody = body
}

func (s *Server) GetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

func (s *Server) Creates() []CreateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CreateRecord(nil), s.createReq...)
}

func (s *Server) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	return ok && user == ShopID && pass == SecretKey
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"type": "error", "code": "invalid_credentials"})
		return
	}
	key := r.Header.Get("Idempotence-Key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"type": "error", "code": "invalid_request"})
		return
	}

	var req struct {
		Amount       payment.Amount       `json:"amount"`
		Confirmation payment.Confirmation `json:"confirmation"`
		Metadata     map[string]string    `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"type": "error", "code": "invalid_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCode != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.failCode)
		_, _ = w.Write([]byte(s.failBody))
		return
	}
	s.createReq = append(s.createReq, CreateRecord{
		IdempotenceKey: key,
		Amount:         req.Amount,
		Metadata:       req.Metadata,
		ReturnURL:      req.Confirmation.ReturnURL,
	})
	if id, ok := s.byKey[key]; ok {
		writeJSON(w, http.StatusOK, s.payments[id])
		return
	}

	id := uuid.NewString()
	p := payment.Payment{
		ID:       id,
		Status:   payment.StatusPending,
		Amount:   req.Amount,
		Metadata: req.Metadata,
		Confirmation: &payment.Confirmation{
			Type:            "redirect",
			ConfirmationURL: s.URL + "/checkout/" + id,
		},
		CreatedAt: time.Now().UTC(),
	}
	s.payments[id] = p
	s.byKey[key] = id
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"type": "error", "code": "invalid_credentials"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v3/payments/")

	s.mu.Lock()
	s.getCalls++
	p, ok := s.payments[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"type": "error", "code": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
