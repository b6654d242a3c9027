// Package geolocation resolves the device position from a location
// provider, downgrading to standard accuracy once when a high accuracy fix
// times out.
package geolocation

import (
	"context"
	"time"

	"github.com/apex/log"
)

const (
	DefaultFallbackTimeout = 10 * time.Second

	FallbackStatus = "Trying with standard accuracy..."
)

type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is the oldest cached fix the provider may return. The
	// resolver always sends zero.
	MaximumAge time.Duration
}

type Position struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the radius of the fix in meters.
	Accuracy  float64
	Timestamp time.Time
}

// Update is one delivery on a position stream: a fix or an error.
type Update struct {
	Position Position
	Err      error
}

// Subscription is a live position stream. Cancel stops it and must be safe
// to call more than once.
type Subscription interface {
	Updates() <-chan Update
	Cancel()
}

// Provider is the platform location source.
type Provider interface {
	Watch(ctx context.Context, opts Options) (Subscription, error)
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// First waits for the first update on sub and cancels the subscription
// before returning, whatever the outcome.
func First(ctx context.Context, sub Subscription, timeout time.Duration) (Position, error) {
	defer sub.Cancel()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case u, ok := <-sub.Updates():
		if !ok {
			return Position{}, NewError(CodePositionUnavailable)
		}
		if u.Err != nil {
			return Position{}, u.Err
		}
		return u.Position, nil
	case <-expired:
		return Position{}, NewError(CodeTimeout)
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
}

type Resolver struct {
	provider        Provider
	fallbackTimeout time.Duration
}

// NewResolver returns a resolver over provider. A nil provider means the
// platform has no location support.
func NewResolver(provider Provider, fallbackTimeout time.Duration) *Resolver {
	if fallbackTimeout <= 0 {
		fallbackTimeout = DefaultFallbackTimeout
	}
	return &Resolver{provider: provider, fallbackTimeout: fallbackTimeout}
}

// Resolve returns the first fix from a fresh position stream. When that
// attempt times out with high accuracy requested, notify is called with
// FallbackStatus and a single standard accuracy request is made; its result
// is returned as is. Every error returned is a *Error.
func (r *Resolver) Resolve(ctx context.Context, opts Options, notify func(status string)) (Position, error) {
	if r == nil || r.provider == nil {
		return Position{}, Unsupported()
	}
	opts.MaximumAge = 0

	pos, err := r.watchFirst(ctx, opts)
	if err == nil {
		return pos, nil
	}
	if !opts.HighAccuracy || !IsTimeout(err) {
		return Position{}, Classify(err)
	}

	log.Infof("High accuracy position timed out after %v, falling back to standard accuracy", opts.Timeout)
	if notify != nil {
		notify(FallbackStatus)
	}
	fctx, cancel := context.WithTimeout(ctx, r.fallbackTimeout)
	defer cancel()
	pos, err = r.provider.CurrentPosition(fctx, Options{HighAccuracy: false, Timeout: r.fallbackTimeout})
	if err != nil {
		return Position{}, Classify(err)
	}
	return pos, nil
}

func (r *Resolver) watchFirst(ctx context.Context, opts Options) (Position, error) {
	sub, err := r.provider.Watch(ctx, opts)
	if err != nil {
		return Position{}, err
	}
	return First(ctx, sub, opts.Timeout)
}
