package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
)

// BenchmarkExecute compares sequential and sharded evaluation over a
// dataset the size of the national schools list.
func BenchmarkExecute(b *testing.B) {
	ds := dataset.New(generate(24000))
	queries := []string{
		"outstanding primary schools in leeds",
		"schools with attainment 8 above 60",
		"School 12345",
	}

	b.Run("sequential", func(b *testing.B) {
		exec := New(ds)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := exec.Execute(context.Background(), queries[i%len(queries)], 50, 0); err != nil {
				b.Fatal(err)
			}
		}
	})

	for _, shards := range []int{2, 4, 8} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			exec := NewSharded(ds, shards)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Execute(context.Background(), queries[i%len(queries)], 50, 0); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
