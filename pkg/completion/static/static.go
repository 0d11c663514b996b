// Package static provides a scripted completion provider for tests and
// offline operation. It plays back a fixed sequence of resolutions and then
// keeps answering with the last one.
package static

import (
	"context"
	"sync"

	"github.com/papercomputeco/strata/pkg/completion"
)

// Provider replays a scripted sequence of resolutions. It is safe for
// concurrent sessions; each call consumes the next step.
type Provider struct {
	mu     sync.Mutex
	script []*completion.Resolution
	next   int
}

// NewProvider creates a provider that plays the given script in order.
func NewProvider(script ...*completion.Resolution) *Provider {
	return &Provider{script: script}
}

// Name returns "static".
func (p *Provider) Name() string { return "static" }

// Complete returns the next scripted resolution. After the script is
// exhausted the last resolution repeats, and an empty script answers with a
// plain acknowledgement.
func (p *Provider) Complete(_ context.Context, req completion.Request) (*completion.Resolution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.script) == 0 {
		return &completion.Resolution{
			Decision: completion.DecisionRespond,
			Thought:  "no scripted steps remain",
			Text:     "acknowledged: " + req.Prompt,
		}, nil
	}

	step := p.script[p.next]
	if p.next < len(p.script)-1 {
		p.next++
	}

	return step, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }
