package engine

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
)

// randomTree builds a random action tree: children[i] are the actions
// observers dispatch in response to action i.
func randomTree(rng *rand.Rand, size int) [][]int {
	children := make([][]int, size)
	for i := 1; i < size; i++ {
		parent := rng.Intn(i)
		children[parent] = append(children[parent], i)
	}
	return children
}

// bfsOrder is the order a FIFO queue must process the tree in.
func bfsOrder(children [][]int) []string {
	var out []string
	queue := []int{0}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, fmt.Sprint(n))
		queue = append(queue, children[n]...)
	}
	return out
}

func TestStore_FIFOOrderingProperty(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			children := randomTree(rng, 2+rng.Intn(40))

			s := newTestStore(t, Config{})
			require.NoError(t, s.RegisterFeature("log", func(state any, a ir.Action) any {
				if a.Type == ir.FeatureInitType("log") {
					return []string{}
				}
				prev, _ := state.([]string)
				if _, err := fmt.Sscan(a.Type, new(int)); err != nil {
					return state
				}
				next := make([]string, len(prev), len(prev)+1)
				copy(next, prev)
				return append(next, a.Type)
			}))

			// Split dispatching across two observers to exercise the
			// snapshot delivery as well as the queue.
			var delivered []string
			s.Actions().Subscribe(func(a ir.Action) {
				var n int
				if _, err := fmt.Sscan(a.Type, &n); err != nil {
					return
				}
				delivered = append(delivered, a.Type)
				for i, c := range children[n] {
					if i%2 == 0 {
						s.Dispatch(ir.Action{Type: fmt.Sprint(c)})
					}
				}
			})
			s.Actions().Subscribe(func(a ir.Action) {
				var n int
				if _, err := fmt.Sscan(a.Type, &n); err != nil {
					return
				}
				for i, c := range children[n] {
					if i%2 == 1 {
						s.Dispatch(ir.Action{Type: fmt.Sprint(c)})
					}
				}
			})

			s.Dispatch(ir.Action{Type: "0"})

			// Children of one action are enqueued in observer order, not
			// declaration order: evens first, then odds.
			reordered := make([][]int, len(children))
			for n, cs := range children {
				for i, c := range cs {
					if i%2 == 0 {
						reordered[n] = append(reordered[n], c)
					}
				}
				for i, c := range cs {
					if i%2 == 1 {
						reordered[n] = append(reordered[n], c)
					}
				}
			}
			want := bfsOrder(reordered)

			assert.Equal(t, want, delivered, "delivery order")
			assert.Equal(t, want, s.State()["log"], "reducer order matches delivery order")
		})
	}
}
