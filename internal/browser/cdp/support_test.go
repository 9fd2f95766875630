package cdp

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stepwise/internal/config"
)

func TestBrowserFlags(t *testing.T) {
	has := func(flags []flag, name string, value any) bool {
		for _, f := range flags {
			if f.name == name && f.value == value {
				return true
			}
		}
		return false
	}

	t.Run("Headful", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{})
		assert.True(t, has(flags, "headless", false))
		assert.False(t, has(flags, "ignore-certificate-errors", true))
	})

	t.Run("HeadlessWithTLSErrorsIgnored", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{Headless: true, IgnoreTLSErrors: true})
		assert.True(t, has(flags, "headless", true))
		assert.True(t, has(flags, "ignore-certificate-errors", true))
		assert.True(t, has(flags, "allow-insecure-localhost", true))
	})

	t.Run("CustomArgs", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{Args: []string{"--lang=de-DE", "--start-maximized", "--"}})
		assert.True(t, has(flags, "lang", "de-DE"))
		assert.True(t, has(flags, "start-maximized", true))
		for _, f := range flags {
			assert.NotEmpty(t, f.name)
		}
	})

	t.Run("Container", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{})
		assert.Equal(t, runtime.GOOS == "linux", has(flags, "no-sandbox", true))
	})
}

func TestViewportSize(t *testing.T) {
	w, h, ok := viewportSize(config.BrowserConfig{Viewport: map[string]int{"width": 1440, "height": 900}})
	assert.True(t, ok)
	assert.Equal(t, 1440, w)
	assert.Equal(t, 900, h)

	_, _, ok = viewportSize(config.BrowserConfig{Viewport: map[string]int{"width": 1440}})
	assert.False(t, ok)

	assert.NotEmpty(t, AllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"}))
}

func TestCombineContext(t *testing.T) {
	type key string

	t.Run("InheritsPrimaryValues", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key("k"), "v")
		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()
		assert.Equal(t, "v", ctx.Value(key("k")))
		assert.NoError(t, ctx.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()
		cancelPrimary()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		ctx, cancel := CombineContext(context.Background(), secondary)
		defer cancel()
		cancelSecondary()
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, time.Millisecond)
	})
}

func TestQueue(t *testing.T) {
	q := newQueue()
	q.push("a")
	q.push("b")

	v, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	q.close()
	q.push("ignored")
	v, ok = q.pop()
	require.True(t, ok, "pending items survive close")
	assert.Equal(t, "b", v)
	_, ok = q.pop()
	assert.False(t, ok)
	q.close()
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := newQueue()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.push("x")
			}
		}()
	}

	got := make(chan int)
	go func() {
		n := 0
		for {
			if _, ok := q.pop(); !ok {
				got <- n
				return
			}
			n++
		}
	}()
	wg.Wait()
	q.close()
	assert.Equal(t, 400, <-got)
}
