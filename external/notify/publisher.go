package notify

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
	"github.com/pickuphub/pickup-backend/internal/platform/resilience"
	"github.com/pickuphub/pickup-backend/internal/usecase"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout = 3 * time.Second
	defaultWorkers = 4
)

var errNotifyTransient = crerr.New("notify transient failure")

type PublisherConfig struct {
	WebhookURL     string
	Token          string
	Timeout        time.Duration
	Workers        int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Publisher posts notification messages to the chat platform's webhook.
// Delivery is fire-and-forget on a bounded worker pool: callers never block
// and never see delivery errors. Messages the webhook refuses with 403 are
// dropped without logging, matching how the chat surface handles bots that
// lack channel permissions.
type Publisher struct {
	client         *fasthttp.Client
	webhookURL     string
	token          string
	timeout        time.Duration
	logger         *logging.Logger
	pool           *ants.Pool
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

type messagePayload struct {
	Community string `json:"community"`
	Target    string `json:"target"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, crerr.Wrap(err, "create notify worker pool")
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Publisher{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		webhookURL:     strings.TrimSpace(cfg.WebhookURL),
		token:          strings.TrimSpace(cfg.Token),
		timeout:        timeout,
		logger:         logger,
		pool:           pool,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}, nil
}

func (p *Publisher) Notify(ctx context.Context, community, target, message string, severity usecase.Severity) {
	if p.webhookURL == "" {
		return
	}

	// The request outlives the triggering command; keep trace correlation
	// for the delivery logs without inheriting cancellation.
	ctx = context.WithoutCancel(ctx)
	payload := messagePayload{
		Community: community,
		Target:    target,
		Message:   message,
		Severity:  string(severity),
	}

	if err := p.pool.Submit(func() { p.deliver(ctx, payload) }); err != nil {
		p.logger.WarnContext(ctx, "notify worker pool saturated, dropping message",
			"community", community, "target", target, "error", err)
	}
}

func (p *Publisher) deliver(ctx context.Context, payload messagePayload) {
	if p.circuitEnabled {
		if err := p.breaker.Allow(); err != nil {
			p.logger.WarnContext(ctx, "notify circuit breaker rejected message", "state", p.breaker.State())
			return
		}
	}

	err := p.post(payload)
	if p.circuitEnabled {
		if err != nil && stderrors.Is(err, errNotifyTransient) {
			p.breaker.RecordFailure()
		} else {
			p.breaker.RecordSuccess()
		}
	}
	if err != nil && !stderrors.Is(err, errPermissionDenied) {
		p.logger.WarnContext(ctx, "notify delivery failed",
			"community", payload.Community, "target", payload.Target, "error", err)
	}
}

var errPermissionDenied = crerr.New("notify permission denied")

func (p *Publisher) post(payload messagePayload) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return crerr.Wrap(err, "marshal notify payload")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.webhookURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	req.SetBody(body)

	if err := p.client.DoTimeout(req, resp, p.timeout); err != nil {
		return crerr.Wrapf(errNotifyTransient, "send webhook request: %v", err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == fasthttp.StatusForbidden:
		return errPermissionDenied
	case isRetryableStatus(status):
		return crerr.Wrapf(errNotifyTransient, "webhook status=%d body=%s", status, abbreviateBody(resp.Body()))
	default:
		return crerr.Newf("webhook status=%d body=%s", status, abbreviateBody(resp.Body()))
	}
}

// Close drains the worker pool. Pending messages are dropped.
func (p *Publisher) Close() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == fasthttp.StatusRequestTimeout ||
		statusCode == fasthttp.StatusTooManyRequests ||
		statusCode >= fasthttp.StatusInternalServerError
}

func abbreviateBody(raw []byte) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	limit := len(raw)
	if limit > 512 {
		limit = 512
	}
	_, _ = buf.Write(raw[:limit])
	if len(raw) > limit {
		_, _ = buf.WriteString("...(truncated)")
	}

	return buf.String()
}
