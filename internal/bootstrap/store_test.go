package bootstrap

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/store/gormstore"
	"github.com/hackgods/clinic-scheduling/internal/store/httpstore"
	"github.com/hackgods/clinic-scheduling/internal/store/memstore"
)

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b, err := OpenStore(ctx, config.Config{StoreBackend: config.BackendMemory}, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		defer b.Close()
		if _, ok := b.Store.(*memstore.Store); !ok {
			t.Fatalf("store = %T", b.Store)
		}
		services, err := b.Store.ListServices(ctx)
		if err != nil || len(services) == 0 {
			t.Errorf("services = %v, %v", services, err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		b, err := OpenStore(ctx, config.Config{StoreBackend: config.BackendSQLite, SQLitePath: ":memory:"}, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		defer b.Close()
		s, ok := b.Store.(*gormstore.Store)
		if !ok {
			t.Fatalf("store = %T", b.Store)
		}
		var _ ServiceCatalog = s
		if len(b.Dependencies) != 1 || b.Dependencies[0].Check(ctx) != nil {
			t.Errorf("sqlite readiness probe not healthy")
		}
	})

	t.Run("remote", func(t *testing.T) {
		b, err := OpenStore(ctx, config.Config{StoreBackend: config.BackendRemote, RemoteStoreURL: "http://appointments.internal"}, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := b.Store.(*httpstore.Client); !ok {
			t.Fatalf("store = %T", b.Store)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := OpenStore(ctx, config.Config{StoreBackend: "mongo"}, zerolog.Nop()); err == nil {
			t.Fatal("expected error")
		}
	})
}
