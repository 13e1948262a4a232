package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBus_DeliversToTypeSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var got []string
	b.Subscribe(models.EventTaskCreated, func(ev *models.Event) {
		mu.Lock()
		got = append(got, ev.TaskID)
		mu.Unlock()
	})

	b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: "DEV-001"})
	b.Emit(&models.Event{Type: models.EventTaskCompleted, TaskID: "DEV-001"})
	b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: "DEV-002"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	assert.Equal(t, []string{"DEV-001", "DEV-002"}, got)
	mu.Unlock()
}

func TestBus_WildcardReceivesEverything(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var count int
	b.Subscribe("*", func(ev *models.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Emit(&models.Event{Type: models.EventTaskCreated})
	b.Emit(&models.Event{Type: models.EventTaskClaimed})
	b.Emit(&models.Event{Type: models.EventGroupCompleted})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 3
	})
}

func TestBus_FIFOPerSubscription(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var order []string
	b.Subscribe("*", func(ev *models.Event) {
		mu.Lock()
		order = append(order, ev.TaskID)
		mu.Unlock()
	})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: id})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
	mu.Unlock()
}

func TestBus_PanickingHandlerDoesNotKillSubscription(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var delivered int
	b.Subscribe("*", func(ev *models.Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
		if ev.TaskID == "boom" {
			panic("handler failure")
		}
	})

	b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: "boom"})
	b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: "fine"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	})
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var count int
	sub := b.Subscribe("*", func(ev *models.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Emit(&models.Event{Type: models.EventTaskCreated})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	b.Unsubscribe(sub)
	b.Emit(&models.Event{Type: models.EventTaskCreated})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestBus_HistoryDropsOldest(t *testing.T) {
	b := NewWithHistory(nil, 3)
	defer b.Close()

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: id})
	}

	history := b.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "3", history[0].TaskID)
	assert.Equal(t, "5", history[2].TaskID)

	limited := b.History(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "4", limited[0].TaskID)
}

func TestBus_HistoryByType(t *testing.T) {
	b := New(nil)
	defer b.Close()

	b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: "a"})
	b.Emit(&models.Event{Type: models.EventTaskClaimed, TaskID: "a"})
	b.Emit(&models.Event{Type: models.EventTaskCreated, TaskID: "b"})

	created := b.HistoryByType(models.EventTaskCreated, 0)
	require.Len(t, created, 2)
	assert.Equal(t, "a", created[0].TaskID)
	assert.Equal(t, "b", created[1].TaskID)
}

func TestBus_EmitIgnoresEmpty(t *testing.T) {
	b := New(nil)
	defer b.Close()

	b.Emit(nil)
	b.Emit(&models.Event{})
	assert.Empty(t, b.History(0))
}
