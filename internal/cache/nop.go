package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Nop is a Cache that stores nothing. It stands in when caching is disabled.
type Nop struct{}

func (Nop) Get(context.Context, string) (json.RawMessage, bool) { return nil, false }

func (Nop) Set(context.Context, string, any, time.Duration) bool { return false }

func (Nop) Delete(context.Context, string) {}

func (Nop) Clear(context.Context) (int, error) { return 0, nil }
