package storage

import (
	"github.com/marsleezm/spec-calvin/configs"
	"context"
	"math/rand"
	"time"
)

// NewKV external API for creating a Local KV.
func NewKV(shardID string, len int, store string, delay time.Duration) *Shard {
	return newShardKV(shardID, store, delay)
}

func (c *Shard) GenTestValue() *RowData {
	return WrapTestValue(rand.Intn(10000))
}

func WrapTestValue(val int) *RowData {
	value := NewRowDataWithLength(1)
	value.SetAttribute(0, val)
	return value
}

func WrapYCSBTestValue(val string) *RowData {
	value := NewRowDataWithLength(10)
	for i := 0; i < 10; i++ {
		value.SetAttribute(uint(i), val)
	}
	return value
}

func Testkit(shardID string, store string) *Shard {
	ta := newShardKV(shardID, store, 0)
	mainTB := ta.AddTable("MAIN", 1)
	for i := 0; i < configs.NumberOfRecordsPerShard; i++ {
		value := NewRowData(mainTB)
		value.SetAttribute(0, i+3)
		ta.AddRow("MAIN", uint64(i), value)
	}
	return ta
}

func YCSBStorageKit(ctx context.Context, shardID string) *Shard {
	ta := newShardKV(shardID, ctx.Value("store").(string), 0)
	ycsbMainTB := ta.AddTable("YCSB_MAIN", 10)
	for i := 0; i < configs.NumberOfRecordsPerShard; i++ {
		value := NewRowData(ycsbMainTB)
		for f := configs.F0; f <= configs.F9; f++ {
			value.SetAttribute(uint(f), "init_value")
		}
		ta.AddRow("YCSB_MAIN", uint64(i), value)
	}
	return ta
}

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func genRandString(length int) string {
	Ln := len(charset)
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rand.Intn(Ln)]
	}
	return string(result)
}

func (c *Shard) AddRow(tb string, key uint64, value *RowData) {
	for !c.Insert(tb, key, value) {
	}
}
