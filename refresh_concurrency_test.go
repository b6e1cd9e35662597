package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t)
	login := env.login(t, "ada@example.com", laptop)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), login.RefreshToken, laptop)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrRefreshReused) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}

	// The losers revoked the device lineage, the winner's successor included.
	active, err := env.st.CountActiveDeviceTokens(context.Background(), "u1", login.DeviceID, env.clock.Now())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected no usable tokens on the device, got %d", active)
	}
}
