package production

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

func TestResourceCacheHitsSkipReader(t *testing.T) {
	reads := 0
	reader := ResourceReaderFunc(func(ctx context.Context, path string, g primitives.Geometry) (*primitives.Distribution, error) {
		reads++
		return primitives.NewDistributionOf(primitives.NewInt(1, primitives.Count)), nil
	})
	cache := NewResourceCache(reader, 4, 1)
	cell := primitives.NewGridPoint(0, 0)

	for i := 0; i < 3; i++ {
		dist, err := cache.Read(context.Background(), "elevation.tif", cell)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dist.Len() != 1 {
			t.Fatalf("expected 1 member, got %d", dist.Len())
		}
	}
	if reads != 1 {
		t.Errorf("expected 1 underlying read, got %d", reads)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached entry, got %d", cache.Len())
	}
}

func TestResourceCacheKeysIncludeGeometry(t *testing.T) {
	reads := 0
	reader := ResourceReaderFunc(func(ctx context.Context, path string, g primitives.Geometry) (*primitives.Distribution, error) {
		reads++
		return primitives.NewDistributionOf(), nil
	})
	cache := NewResourceCache(reader, 0, 0)

	cache.Read(context.Background(), "elevation.tif", primitives.NewGridPoint(0, 0))
	cache.Read(context.Background(), "elevation.tif", primitives.NewGridPoint(0, 1))
	if reads != 2 {
		t.Errorf("different cells must read separately; got %d reads", reads)
	}
}

func TestResourceCacheRetriesTransientErrors(t *testing.T) {
	attempts := 0
	reader := ResourceReaderFunc(func(ctx context.Context, path string, g primitives.Geometry) (*primitives.Distribution, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("%w: flaky read", primitives.ErrIO)
		}
		return primitives.NewDistributionOf(), nil
	})
	cache := NewResourceCache(reader, 1, 3)
	if _, err := cache.Read(context.Background(), "x.tif", primitives.NewGridPoint(0, 0)); err != nil {
		t.Fatalf("expected third attempt to succeed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestResourceCacheSurfacesExhaustedRetries(t *testing.T) {
	reader := ResourceReaderFunc(func(ctx context.Context, path string, g primitives.Geometry) (*primitives.Distribution, error) {
		return nil, fmt.Errorf("%w: unreachable", primitives.ErrIO)
	})
	cache := NewResourceCache(reader, 1, 2)
	_, err := cache.Read(context.Background(), "x.tif", primitives.NewGridPoint(0, 0))
	if !errors.Is(err, primitives.ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}

func TestResourceCacheDoesNotRetryProgramErrors(t *testing.T) {
	attempts := 0
	reader := ResourceReaderFunc(func(ctx context.Context, path string, g primitives.Geometry) (*primitives.Distribution, error) {
		attempts++
		return nil, fmt.Errorf("%w: bad request", primitives.ErrProgram)
	})
	cache := NewResourceCache(reader, 1, 5)
	if _, err := cache.Read(context.Background(), "x.tif", primitives.NewGridPoint(0, 0)); err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("non-transient errors must not retry; got %d attempts", attempts)
	}
}
