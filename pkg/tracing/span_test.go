package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	require.Same(t, root, SpanFromContext(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, child := StartChildSpan(ctx, "shard")
			child.SetAttr("hits", 3)
			child.End()
		}()
	}
	wg.Wait()
	root.End()

	require.Len(t, root.Children, 4)
	for _, c := range root.Children {
		assert.Equal(t, "req-1", c.TraceID)
		assert.Equal(t, 3, c.Attrs["hits"])
	}
}

func TestOrphanSpan(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "compile")
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestLogOnlyAtDebug(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	ctx, root := StartSpan(context.Background(), "search", "req-2")
	_, child := StartChildSpan(ctx, "filter")
	child.End()
	root.End()
	root.Log(ctx)
	assert.Empty(t, buf.String())

	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	root.Log(ctx)
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "span=filter")
	assert.Contains(t, out, "depth=1")
	assert.Contains(t, out, "trace_id=req-2")
}
