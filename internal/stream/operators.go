package stream

import (
	"sync"

	"github.com/roach88/minirx/internal/ir"
)

// Map derives a stream by applying fn to every value.
func Map[T, R any](src Observable[T], fn func(T) R) Observable[R] {
	return Func[R](func(next func(R)) Subscription {
		return src.Subscribe(func(v T) {
			next(fn(v))
		})
	})
}

// Filter forwards only values matching pred.
func Filter[T any](src Observable[T], pred func(T) bool) Observable[T] {
	return Func[T](func(next func(T)) Subscription {
		return src.Subscribe(func(v T) {
			if pred(v) {
				next(v)
			}
		})
	})
}

// DistinctUntilChanged suppresses values equal (by eq) to the previous
// value delivered to the same subscriber. The first value always passes.
func DistinctUntilChanged[T any](src Observable[T], eq func(a, b T) bool) Observable[T] {
	return Func[T](func(next func(T)) Subscription {
		var (
			mu   sync.Mutex
			last T
			seen bool
		)
		return src.Subscribe(func(v T) {
			mu.Lock()
			if seen && eq(last, v) {
				mu.Unlock()
				return
			}
			last, seen = v, true
			mu.Unlock()
			next(v)
		})
	})
}

// Select maps src through fn and emits only when the result changes
// identity. Combined with a replay-latest source the result is also
// replay-latest.
func Select[T, R any](src Observable[T], fn func(T) R) Observable[R] {
	return DistinctUntilChanged(Map(src, fn), func(a, b R) bool {
		return ir.Same(a, b)
	})
}
