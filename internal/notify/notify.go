package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 4 * time.Second

// Kind classifies a toast. It is used for styling only.
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Toast is a transient message shown to the user.
type Toast struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Expires time.Time `json:"expires"`
}

// Notifier holds the queue of live toasts. Each toast auto-dismisses after
// its TTL. Safe for concurrent use.
type Notifier struct {
	mu     sync.Mutex
	toasts []Toast
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(n *Notifier) { n.ttl = d }
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Info(msg string) Toast  { return n.Push(KindInfo, msg) }
func (n *Notifier) Warn(msg string) Toast  { return n.Push(KindWarning, msg) }
func (n *Notifier) Error(msg string) Toast { return n.Push(KindError, msg) }

// Push queues a toast.
func (n *Notifier) Push(kind Kind, msg string) Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := Toast{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: msg,
		Expires: n.now().Add(n.ttl),
	}
	n.toasts = append(n.toasts, t)
	return t
}

// Active drops expired toasts and returns the rest in push order.
func (n *Notifier) Active() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	live := n.toasts[:0]
	for _, t := range n.toasts {
		if now.Before(t.Expires) {
			live = append(live, t)
		}
	}
	n.toasts = live

	out := make([]Toast, len(live))
	copy(out, live)
	return out
}

// Drain returns the live toasts and clears the queue. The page uses it to
// show each toast once per render.
func (n *Notifier) Drain() []Toast {
	live := n.Active()
	n.mu.Lock()
	n.toasts = nil
	n.mu.Unlock()
	return live
}
