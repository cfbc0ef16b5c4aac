package utils_test

import (
	"testing"
	"time"

	"eduface-backend/internal/utils"
)

func TestMutexMapSameKeyRunsSequentially(t *testing.T) {
	m := utils.NewMutexMap(10)
	key := "subject-1"

	sleepDuration := 200 * time.Millisecond

	routine := func(wait chan bool) {
		if err := m.Lock(key); err != nil {
			t.Errorf("error locking key: %v", err)
		}

		time.Sleep(sleepDuration)
		m.Unlock(key) //nolint:errcheck
		wait <- true
	}

	wait1 := make(chan bool)
	wait2 := make(chan bool)

	start := time.Now()
	go routine(wait1)
	go routine(wait2)

	<-wait1
	<-wait2

	elapsed := time.Since(start)
	if elapsed < 2*sleepDuration {
		t.Errorf("routines are not running sequentially, expected > %v elapsed, got %v", 2*sleepDuration, elapsed)
	}
}

func TestMutexMapDifferentKeysRunConcurrently(t *testing.T) {
	m := utils.NewMutexMap(10)

	sleepDuration := 200 * time.Millisecond

	routine := func(key string, wait chan bool) {
		if err := m.Lock(key); err != nil {
			t.Errorf("error locking key: %v", err)
		}

		time.Sleep(sleepDuration)
		m.Unlock(key) //nolint:errcheck
		wait <- true
	}

	wait1 := make(chan bool)
	wait2 := make(chan bool)

	start := time.Now()
	go routine("subject-1", wait1)
	go routine("subject-2", wait2)

	<-wait1
	<-wait2

	elapsed := time.Since(start)
	if elapsed > 350*time.Millisecond {
		t.Errorf("routines are not running concurrently, expected around %v elapsed, got %v", sleepDuration, elapsed)
	}
}

func TestMutexMapErrorWhenMaxSizeReached(t *testing.T) {
	m := utils.NewMutexMap(1)

	if err := m.Lock("subject-1"); err != nil {
		t.Errorf("error locking first key: %v", err)
	}

	if err := m.Lock("subject-2"); err == nil {
		t.Errorf("expected error when max size reached, got nil")
	}
}

func TestMutexMapUnlockErrorWhenKeyNotFound(t *testing.T) {
	m := utils.NewMutexMap(10)

	if err := m.Unlock("missing"); err == nil {
		t.Errorf("expected error when unlocking missing key, got nil")
	}
}
