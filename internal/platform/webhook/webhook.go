// Package webhook forwards ward events to external HTTP subscribers such as a
// bed-board display or the finance system. Each delivery is a signed JSON POST
// retried on transport errors and 5xx responses.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/inpatient/internal/platform/apperr"
	"github.com/hospital/inpatient/internal/platform/metrics"
	"github.com/hospital/inpatient/internal/platform/websocket"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	maxDeliveries   = 500
)

const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

type Endpoint struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery records the outcome of sending one event to one endpoint.
type Delivery struct {
	ID         string        `json:"id"`
	EndpointID string        `json:"endpoint_id"`
	EventType  string        `json:"event_type"`
	SubjectID  string        `json:"subject_id,omitempty"`
	StatusCode int           `json:"status_code"`
	Attempts   int           `json:"attempts"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Store keeps endpoints and a bounded delivery log.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, endpointID string) ([]*Delivery, error)
}

type MemoryStore struct {
	mu         sync.RWMutex
	endpoints  map[string]*Endpoint
	order      []string
	deliveries []*Delivery
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{endpoints: make(map[string]*Endpoint)}
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; ok {
		return apperr.Conflict("webhook.create", "endpoint %s already exists", ep.ID)
	}
	s.endpoints[ep.ID] = ep
	s.order = append(s.order, ep.ID)
	return nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, apperr.NotFound("webhook.get", "endpoint %s not found", id)
	}
	cp := *ep
	return &cp, nil
}

func (s *MemoryStore) ListEndpoints(_ context.Context) ([]*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Endpoint, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.endpoints[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) UpdateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; !ok {
		return apperr.NotFound("webhook.update", "endpoint %s not found", ep.ID)
	}
	cp := *ep
	s.endpoints[ep.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return apperr.NotFound("webhook.delete", "endpoint %s not found", id)
	}
	delete(s.endpoints, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// RecordDelivery appends to the log, dropping the oldest entries past
// maxDeliveries.
func (s *MemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	if over := len(s.deliveries) - maxDeliveries; over > 0 {
		s.deliveries = append([]*Delivery(nil), s.deliveries[over:]...)
	}
	return nil
}

// ListDeliveries returns the newest deliveries first.
func (s *MemoryStore) ListDeliveries(_ context.Context, endpointID string) ([]*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Delivery
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		if endpointID == "" || s.deliveries[i].EndpointID == endpointID {
			out = append(out, s.deliveries[i])
		}
	}
	return out, nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" or bare hex signature.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return apperr.Validation("webhook.register", "url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return apperr.Validation("webhook.register", "invalid url %q", rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return apperr.Validation("webhook.register", "url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// eventMatches reports whether eventType matches a subscription pattern.
// Patterns are exact ("admission.pay"), "*", or a prefix wildcard
// ("admission.*").
func eventMatches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep *Endpoint) wants(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

func retryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

type Option func(*Dispatcher)

// WithRetries sets how many times a failed delivery is retried and the
// initial backoff between attempts.
func WithRetries(n int, wait time.Duration) Option {
	return func(d *Dispatcher) {
		d.client.SetRetryCount(n).SetRetryWaitTime(wait).SetRetryMaxWaitTime(8 * wait)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.client.SetTimeout(timeout) }
}

// Dispatcher delivers events to every active endpoint subscribed to them.
// It implements websocket.EventPublisher so it can sit next to the hub.
type Dispatcher struct {
	store   Store
	client  *resty.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewDispatcher(store Store, logger zerolog.Logger, opts ...Option) *Dispatcher {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(30*time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(retryable)
	d := &Dispatcher{
		store:  store,
		client: client,
		logger: logger.With().Str("component", "webhook").Logger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Register validates and stores a new endpoint. A random secret is generated
// when none is given.
func (d *Dispatcher) Register(ctx context.Context, rawURL, secret string, events []string) (*Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := generateSecret()
		if err != nil {
			return nil, apperr.Internal("webhook.register", err)
		}
		secret = s
	}
	ep := &Endpoint{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (d *Dispatcher) SetActive(ctx context.Context, id string, active bool) (*Endpoint, error) {
	ep, err := d.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	ep.Active = active
	if err := d.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// Publish delivers in the background and never fails the caller. Only the
// top-level occupancy and workflow topics are forwarded; per-department
// topics stay on the websocket.
func (d *Dispatcher) Publish(ctx context.Context, event websocket.Event) error {
	if event.Topic != websocket.TopicOccupancy && event.Topic != websocket.TopicWorkflow {
		return nil
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Deliver(context.WithoutCancel(ctx), event)
	}()
	return nil
}

// Deliver sends event to every matching endpoint and returns the recorded
// deliveries.
func (d *Dispatcher) Deliver(ctx context.Context, event websocket.Event) []*Delivery {
	endpoints, err := d.store.ListEndpoints(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("list webhook endpoints")
		return nil
	}
	var out []*Delivery
	for _, ep := range endpoints {
		if !ep.Active || !ep.wants(event.Type) {
			continue
		}
		out = append(out, d.DeliverTo(ctx, ep, event))
	}
	return out
}

func (d *Dispatcher) DeliverTo(ctx context.Context, ep *Endpoint, event websocket.Event) *Delivery {
	del := &Delivery{
		ID:         uuid.New().String(),
		EndpointID: ep.ID,
		EventType:  event.Type,
		SubjectID:  event.SubjectID,
		CreatedAt:  d.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		del.Status = DeliveryFailed
		del.Error = err.Error()
		d.record(ctx, del)
		return del
	}

	start := time.Now()
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader(SignatureHeader, "sha256="+SignPayload(payload, ep.Secret)).
		SetHeader(EventHeader, event.Type).
		SetBody(payload).
		Post(ep.URL)
	del.Duration = time.Since(start)
	if resp != nil {
		del.StatusCode = resp.StatusCode()
		if resp.Request != nil {
			del.Attempts = resp.Request.Attempt
		}
	}

	switch {
	case err != nil:
		del.Status = DeliveryFailed
		del.Error = err.Error()
	case del.StatusCode < 200 || del.StatusCode >= 300:
		del.Status = DeliveryFailed
		del.Error = fmt.Sprintf("non-2xx response: %d", del.StatusCode)
	default:
		del.Status = DeliverySuccess
	}
	d.record(ctx, del)
	return del
}

// Test sends a synthetic ping event to one endpoint, active or not.
func (d *Dispatcher) Test(ctx context.Context, id string) (*Delivery, error) {
	ep, err := d.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	ev, err := websocket.NewEvent("webhook.ping", "", ep.ID, nil)
	if err != nil {
		return nil, apperr.Internal("webhook.test", err)
	}
	return d.DeliverTo(ctx, ep, ev), nil
}

func (d *Dispatcher) record(ctx context.Context, del *Delivery) {
	if err := d.store.RecordDelivery(ctx, del); err != nil {
		d.logger.Warn().Err(err).Msg("record webhook delivery")
	}
	d.metrics.ObserveWebhookDelivery(del.Status)
	ev := d.logger.Debug()
	if del.Status == DeliveryFailed {
		ev = d.logger.Warn()
	}
	ev.Str("endpoint_id", del.EndpointID).
		Str("event_type", del.EventType).
		Int("status_code", del.StatusCode).
		Int("attempts", del.Attempts).
		Str("error", del.Error).
		Msg("webhook delivery")
}

// Wait blocks until background deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
