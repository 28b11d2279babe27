package parser

import "testing"

// BenchmarkCompile measures query compilation for queries of increasing
// complexity.
func BenchmarkCompile(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"phase", "primary schools"},
		{"location", "outstanding secondary schools in Darlington"},
		{"metrics", "schools with Attainment 8 above 60 and more than 1000 pupils"},
		{"postcode", "ri schools near SW1A 1AA"},
		{"fuzzy", "Westminster Abbey Choir"},
		{"long", "top performing catholic girls schools in the south with more than 800 pupils"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Compile(q.query)
			}
		})
	}
}
