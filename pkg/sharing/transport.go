package sharing

import (
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"capsuled/pkg/config"
	"capsuled/pkg/faults"
)

// Transport delivers a serialized invite notice to a remote capsule.
// Implementations must be safe for concurrent use.
type Transport interface {
	Deliver(targetCapsule string, payload []byte) error
}

// HTTPTransport posts notices to the peer's sharing inbox. Peer base URLs
// come from the sharing config; an unknown capsule id is a hard failure,
// discovery is a deployment concern.
type HTTPTransport struct {
	client *fasthttp.Client
}

// NewHTTPTransport builds the production transport.
func NewHTTPTransport() *HTTPTransport {
	timeout := config.Current().Sharing.HTTP.Timeout.Std()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPTransport{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
	}
}

// Deliver posts the payload to the peer's /v1/sharing/inbox.
func (t *HTTPTransport) Deliver(targetCapsule string, payload []byte) error {
	base, ok := config.Current().Sharing.Peers[targetCapsule]
	if !ok {
		return faults.NotFound("no peer endpoint for capsule %s", targetCapsule)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(base + "/v1/sharing/inbox")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := t.client.Do(req, resp); err != nil {
		return fmt.Errorf("deliver to %s: %w", targetCapsule, err)
	}
	if sc := resp.StatusCode(); sc < 200 || sc >= 300 {
		return fmt.Errorf("deliver to %s: peer returned %d", targetCapsule, sc)
	}
	return nil
}

// LocalTransport routes notices straight into this node's inbox; it
// serves tests and single-node deployments where both capsules are local.
type LocalTransport struct {
	mu        sync.Mutex
	delivered int
	// Fail, when non-nil, decides per-target whether delivery errors.
	Fail func(targetCapsule string) error
}

func (t *LocalTransport) Deliver(targetCapsule string, payload []byte) error {
	if t.Fail != nil {
		if err := t.Fail(targetCapsule); err != nil {
			return err
		}
	}
	if err := ReceiveNoticeBytes(payload); err != nil {
		return err
	}
	t.mu.Lock()
	t.delivered++
	t.mu.Unlock()
	return nil
}

// Delivered returns how many notices reached the local inbox.
func (t *LocalTransport) Delivered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delivered
}
