package queue

import (
	"sync"
	"testing"

	"github.com/magiconair/properties/assert"
)

func TestPushPopOrder(t *testing.T) {
	q := New(4)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		assert.Equal(t, ok, true)
		assert.Equal(t, v.(int), i)
	}
	_, ok := q.Pop()
	assert.Equal(t, ok, false)
}

func TestGrowsUnderLoad(t *testing.T) {
	q := New(2)
	for i := 0; i < 1000; i++ {
		q.Push(i)
	}
	assert.Equal(t, q.Size(), 1000)
	for i := 0; i < 1000; i++ {
		v, ok := q.Pop()
		assert.Equal(t, ok, true)
		assert.Equal(t, v.(int), i)
	}
	assert.Equal(t, q.Empty(), true)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			q.Push(i)
		}
	}()

	got := 0
	for got < 10000 {
		if _, ok := q.Pop(); ok {
			got++
		}
	}
	wg.Wait()
	assert.Equal(t, got, 10000)
}
