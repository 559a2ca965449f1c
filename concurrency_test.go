package godi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goroutines = 64

func TestConcurrency_SingletonExactlyOnce(t *testing.T) {
	calls := &counter{}
	reg := newTestRegistry(t, nil, Describe(Singleton, func(Resolver) (*TService, error) {
		calls.inc()
		time.Sleep(10 * time.Millisecond)
		return &TService{}, nil
	}))
	reg.Freeze()

	results := make([]*TService, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()

			scope, err := reg.CreateScope()
			if !assert.NoError(t, err) {
				return
			}
			defer scope.Close()

			svc, err := Resolve[*TService](scope)
			assert.NoError(t, err)
			results[i] = svc
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls.get())
	for _, svc := range results {
		assert.Same(t, results[0], svc)
	}
}

func TestConcurrency_ScopedExactlyOncePerScope(t *testing.T) {
	calls := &counter{}
	reg, scope1 := newTestScope(t, Describe(Scoped, func(Resolver) (*TService, error) {
		calls.inc()
		time.Sleep(5 * time.Millisecond)
		return &TService{}, nil
	}))

	scope2, err := reg.CreateScope()
	require.NoError(t, err)
	defer scope2.Close()

	scopes := []*Scope{scope1, scope2}
	results := make([]*TService, goroutines)

	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc, err := Resolve[*TService](scopes[i%2])
			assert.NoError(t, err)
			results[i] = svc
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, calls.get())
	for i, svc := range results {
		assert.Same(t, results[i%2], svc)
	}
	assert.NotSame(t, results[0], results[1])
}

func TestConcurrency_FailedConstructionRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	_, scope := newTestScope(t, Describe(Singleton, func(Resolver) (*TService, error) {
		mu.Lock()
		defer mu.Unlock()

		attempts++
		if attempts == 1 {
			return nil, errTestFactory
		}
		return &TService{Value: attempts}, nil
	}))

	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = Resolve[*TService](scope)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, errTestFactory)
			failures++
		}
	}
	assert.LessOrEqual(t, failures, 1)

	svc, err := Resolve[*TService](scope)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Value)
}

func TestConcurrency_CrossGoroutineCycle(t *testing.T) {
	startedA, startedB := make(chan struct{}), make(chan struct{})
	var onceA, onceB sync.Once

	_, scope := newTestScope(t,
		Describe(Singleton, func(r Resolver) (*cycleA, error) {
			onceA.Do(func() { close(startedA) })
			<-startedB
			b, err := Resolve[*cycleB](r)
			return &cycleA{B: b}, err
		}),
		Describe(Singleton, func(r Resolver) (*cycleB, error) {
			onceB.Do(func() { close(startedB) })
			<-startedA
			if _, err := Resolve[*cycleA](r); err != nil {
				return nil, err
			}
			return &cycleB{}, nil
		}),
	)

	errs := make(chan error, 2)
	go func() {
		_, err := Resolve[*cycleA](scope)
		errs <- err
	}()
	go func() {
		_, err := Resolve[*cycleB](scope)
		errs <- err
	}()

	for range 2 {
		select {
		case err := <-errs:
			assert.True(t, IsCircularDependency(err), "expected a cycle, got %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("resolutions deadlocked")
		}
	}
}

func TestConcurrency_IndependentCyclesDoNotInterfere(t *testing.T) {
	_, scope := newTestScope(t,
		Describe(Transient, func(r Resolver) (*cycleA, error) {
			b, err := Resolve[*cycleB](r)
			return &cycleA{B: b}, err
		}),
		Describe(Transient, func(r Resolver) (*cycleB, error) {
			c, err := Resolve[*cycleC](r)
			return &cycleB{C: c}, err
		}),
		Describe(Transient, func(r Resolver) (*cycleC, error) {
			a, err := Resolve[*cycleA](r)
			return &cycleC{A: a}, err
		}),
	)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := Resolve[*cycleA](scope)
			var cycleErr CircularDependencyError
			if assert.ErrorAs(t, err, &cycleErr) {
				assert.Len(t, cycleErr.Chain, 4)
			}
		}()
	}
	wg.Wait()
}

func TestConcurrency_Registration(t *testing.T) {
	reg := newTestRegistry(t, nil)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Register(countingService(Transient, &counter{})))
		}()
	}
	wg.Wait()

	reg.Freeze()
	assert.Equal(t, goroutines, reg.Count())
	assert.Len(t, reg.Descriptors(TypeOf[*TService]()), goroutines)
}

func TestConcurrency_ConstructionFinishingAfterClose(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	built := &TDisposable{}

	reg := NewRegistry()
	require.NoError(t, reg.Register(Describe(Singleton, func(Resolver) (*TDisposable, error) {
		close(started)
		<-release
		return built, nil
	})))
	reg.Freeze()

	scope, err := reg.CreateScope()
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := Resolve[*TDisposable](scope)
		result <- err
	}()

	<-started
	require.NoError(t, reg.Close())
	close(release)

	err = <-result
	assert.ErrorIs(t, err, ErrRegistryDisposed)
	assert.True(t, built.IsClosed())
}

func TestConcurrency_CloseWithLiveScopes(t *testing.T) {
	reg := newTestRegistry(t, nil, Describe(Scoped, func(Resolver) (*TDisposable, error) {
		return &TDisposable{}, nil
	}))
	reg.Freeze()

	var mu sync.Mutex
	var instances []*TDisposable

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()

			scope, err := reg.CreateScope()
			if !assert.NoError(t, err) {
				return
			}

			d, err := Resolve[*TDisposable](scope)
			if assert.NoError(t, err) {
				mu.Lock()
				instances = append(instances, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.NoError(t, reg.Close())
	for _, d := range instances {
		assert.Equal(t, 1, d.CloseCount())
	}

	_, err := reg.CreateScope()
	assert.ErrorIs(t, err, ErrRegistryDisposed)
}

func TestConcurrency_CloseRacesCloseAsync(t *testing.T) {
	reg := newTestRegistry(t, nil,
		Describe(Singleton, func(Resolver) (*TDisposable, error) {
			return &TDisposable{Name: "singleton"}, nil
		}),
		Describe(Scoped, func(Resolver) (TDisposableScoped, error) {
			return TDisposableScoped{&TDisposable{Name: "scoped"}}, nil
		}),
	)
	reg.Freeze()

	scope, err := reg.CreateScope()
	require.NoError(t, err)

	singleton := MustResolve[*TDisposable](scope)
	scoped := MustResolve[TDisposableScoped](scope).TDisposable

	closeBoth := func(i int) {
		if i%2 == 0 {
			assert.NoError(t, scope.Close())
			assert.NoError(t, reg.Close())
			return
		}

		assert.NoError(t, <-scope.CloseAsync(context.Background()))
		assert.NoError(t, <-reg.CloseAsync(context.Background()))
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			closeBoth(i)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, scoped.CloseCount())
	assert.Equal(t, 1, singleton.CloseCount())
	assert.True(t, scope.IsDisposed())
	assert.True(t, reg.IsDisposed())
}

// TDisposableScoped gives the scoped instance its own service type.
type TDisposableScoped struct {
	*TDisposable
}
