package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrMockFailure 是模拟回复器按故障率注入的错误。
var ErrMockFailure = errors.New("mock responder failure")

// CannedResponses 是模拟回复器轮流使用的固定回复。
var CannedResponses = []string{
	"Entendido, ¿en qué más puedo ayudarte?",
	"Esa es una excelente pregunta. Déjame explicarte...",
	"Claro, con gusto te ayudo con eso.",
	"¿Podrías darme más detalles sobre tu consulta?",
	"Perfecto, he registrado esa información.",
}

// MockOptions 控制模拟回复器的延迟与故障注入。
type MockOptions struct {
	// 延迟在 [MinDelay, MaxDelay] 内均匀分布。
	MinDelay    time.Duration
	MaxDelay    time.Duration
	FailureRate float64
	// Rand 返回 [0, 1) 的随机数；为 nil 时使用 math/rand。
	Rand func() float64
}

type mockClient struct {
	opts MockOptions
}

// NewMockClient 创建一个不做真实推理的模拟回复器。
func NewMockClient(opts MockOptions) Client {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	return &mockClient{opts: opts}
}

// Reply 等待一段随机延迟后返回一条固定回复，忽略消息内容。
func (c *mockClient) Reply(ctx context.Context, _ []Message) (string, error) {
	delay := c.opts.MinDelay + time.Duration(c.opts.Rand()*float64(c.opts.MaxDelay-c.opts.MinDelay))
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.opts.FailureRate > 0 && c.opts.Rand() < c.opts.FailureRate {
		return "", ErrMockFailure
	}
	idx := int(c.opts.Rand() * float64(len(CannedResponses)))
	if idx >= len(CannedResponses) {
		idx = len(CannedResponses) - 1
	}
	return CannedResponses[idx], nil
}
