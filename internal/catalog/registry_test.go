package catalog

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BasicRegistration(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := New[int]()

		require.NoError(t, r.Register("a", 1))

		v, ok := r.Get("a")
		require.True(t, ok)
		require.Equal(t, 1, v)
	})

	t.Run("duplicate name fails", func(t *testing.T) {
		r := New[int]()
		require.NoError(t, r.Register("a", 1))

		err := r.Register("a", 2)
		require.Error(t, err)
		require.Contains(t, err.Error(), "a")

		// the original value survives a failed re-registration
		v, ok := r.Get("a")
		require.True(t, ok)
		require.Equal(t, 1, v)
	})

	t.Run("get unknown name", func(t *testing.T) {
		r := New[int]()
		_, ok := r.Get("missing")
		require.False(t, ok)
	})

	t.Run("remove returns the removed handle", func(t *testing.T) {
		r := New[string]()
		require.NoError(t, r.Register("a", "handle-a"))

		v, ok := r.Remove("a")
		require.True(t, ok)
		require.Equal(t, "handle-a", v)

		_, ok = r.Remove("a")
		require.False(t, ok)
	})

	t.Run("names returns a snapshot", func(t *testing.T) {
		r := New[int]()
		require.NoError(t, r.Register("a", 1))
		require.NoError(t, r.Register("b", 2))

		names := r.Names()
		require.ElementsMatch(t, []string{"a", "b"}, names)
		require.Equal(t, 2, r.Len())
	})
}

// TestRegistry_ConcurrentRegistrationUniqueness is scenario F of §8: N
// concurrent Register calls for the same name succeed exactly once.
func TestRegistry_ConcurrentRegistrationUniqueness(t *testing.T) {
	const n = 64

	r := New[int]()

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Register("shared", i)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_SizeGaugeTracksLen(t *testing.T) {
	r := New[int]()
	gauge := r.SizeGauge(prometheus.GaugeOpts{Name: "test_registry_size"})

	require.Equal(t, float64(0), testutil.ToFloat64(gauge))

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))
	require.Equal(t, float64(2), testutil.ToFloat64(gauge))

	_, ok := r.Remove("a")
	require.True(t, ok)
	require.Equal(t, float64(1), testutil.ToFloat64(gauge))
}
