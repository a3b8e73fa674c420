package extensions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	pumped "github.com/pumped-fn/pumped-go-sub001"
)

func TestGraphDebugExtension_OnError(t *testing.T) {
	var buf bytes.Buffer
	handler := NewHumanHandler(io.MultiWriter(&buf, os.Stdout), slog.LevelError)

	scope := pumped.NewScope(pumped.WithExtension(NewGraphDebugExtension(handler)))
	defer scope.Dispose()

	storage := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "storage", nil
	}).Named("Storage")

	userService := pumped.Derive(storage.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "", fmt.Errorf("type assertion failed: expected *User, got *string")
	}).Named("UserService")

	_, err := pumped.Resolve(scope, userService)
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	output := buf.String()
	if !strings.Contains(output, strings.Repeat("=", 70)) {
		t.Error("expected separator line with equals signs")
	}
	if !strings.Contains(output, "[GraphDebug] Dependency Resolution Error") {
		t.Error("expected '[GraphDebug] Dependency Resolution Error' header")
	}
	if !strings.Contains(output, "Failed Executor: UserService") {
		t.Error("expected 'Failed Executor: UserService'")
	}
	if !strings.Contains(output, "Error: factory execution failed in UserService: type assertion failed") {
		t.Error("expected error message in human-readable format")
	}
	if !strings.Contains(output, "Dependency Graph:") {
		t.Error("expected 'Dependency Graph:' section")
	}
	if !strings.Contains(output, "Storage") {
		t.Error("expected 'Storage' in dependency graph")
	}
	if !strings.Contains(output, "└─>") || !strings.Contains(output, "UserService") {
		t.Error("expected tree structure with '└─>' and 'UserService'")
	}
	if !strings.Contains(output, "❌ FAILED") {
		t.Error("expected '❌ FAILED' status indicator")
	}
	if !strings.Contains(output, "Error Details:") {
		t.Error("expected 'Error Details:' section")
	}
}

func TestGraphDebugExtension_TracksResolvedExecutors(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	scope := pumped.NewScope(pumped.WithExtension(ext))
	defer scope.Dispose()

	storage := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "storage", nil
	}).Named("Storage")

	service := pumped.Derive(storage.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "service-" + realized.(string), nil
	}).Named("Service")

	if _, err := pumped.Resolve(scope, service); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ext.resolvedExecutors[storage] {
		t.Error("expected storage to be tracked as resolved")
	}
	if !ext.resolvedExecutors[service] {
		t.Error("expected service to be tracked as resolved")
	}
}

func TestGraphDebugExtension_ExportDependencyGraph(t *testing.T) {
	scope := pumped.NewScope()
	defer scope.Dispose()

	config := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "config", nil
	}).Named("Config")

	storage := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "storage", nil
	}).Named("Storage")

	service := pumped.DeriveTuple([]pumped.Dependency{config.Reactive(), storage.Reactive()}, func(rc *pumped.ResolveContext, realized []any) (string, error) {
		return realized[0].(string) + "-" + realized[1].(string), nil
	}).Named("Service")

	if _, err := pumped.Resolve(scope, service); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	graph := scope.ExportDependencyGraph()
	if len(graph) == 0 {
		t.Fatal("expected non-empty dependency graph")
	}

	assertDependent := func(dep *pumped.Executor[string], label string) {
		deps, ok := graph[dep]
		if !ok {
			t.Fatalf("expected %s in dependency graph", label)
		}
		for _, d := range deps {
			if d == service {
				return
			}
		}
		t.Fatalf("expected service to be dependent of %s", label)
	}
	assertDependent(config, "config")
	assertDependent(storage, "storage")
}

func TestSilentHandler(t *testing.T) {
	handler := NewSilentHandler()

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected SilentHandler to be disabled for Debug level")
	}
	if handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected SilentHandler to be disabled for Error level")
	}
	if err := handler.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("expected Handle to return nil, got %v", err)
	}
	if handler.WithAttrs([]slog.Attr{}) != handler {
		t.Error("expected WithAttrs to return self")
	}
	if handler.WithGroup("test") != handler {
		t.Error("expected WithGroup to return self")
	}

	ext := NewGraphDebugExtension(handler)
	scope := pumped.NewScope(pumped.WithExtension(ext))
	defer scope.Dispose()

	failingExec := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "", fmt.Errorf("intentional error")
	}).Named("FailingExecutor")

	if _, err := pumped.Resolve(scope, failingExec); err == nil {
		t.Error("expected error from failing executor")
	}
}

func TestGraphDebugExtension_ComplexDependencyGraph(t *testing.T) {
	handler := NewHumanHandler(os.Stdout, slog.LevelError)
	scope := pumped.NewScope(pumped.WithExtension(NewGraphDebugExtension(handler)))
	defer scope.Dispose()

	dbConfig := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "db-config", nil
	}).Named("DBConfig")

	cacheConfig := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "cache-config", nil
	}).Named("CacheConfig")

	database := pumped.Derive(dbConfig.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "database-" + realized.(string), nil
	}).Named("Database")

	cache := pumped.Derive(cacheConfig.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "cache-" + realized.(string), nil
	}).Named("Cache")

	orderRepo := pumped.Derive(database.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "order-repo-" + realized.(string), nil
	}).Named("OrderRepository")

	orderService := pumped.DeriveTuple([]pumped.Dependency{orderRepo.Reactive(), cache.Reactive()}, func(rc *pumped.ResolveContext, realized []any) (string, error) {
		return "", fmt.Errorf("database connection timeout: failed to connect to orders table")
	}).Named("OrderService")

	apiGateway := pumped.Derive(orderService.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "api-gateway", nil
	}).Named("APIGateway")

	_, err := pumped.Resolve(scope, apiGateway)
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	t.Logf("demonstrated a multi-layer dependency graph with a failure at OrderService")
}

func TestGraphDebugExtension_MultipleFailures(t *testing.T) {
	handler := NewHumanHandler(os.Stdout, slog.LevelError)
	scope := pumped.NewScope(pumped.WithExtension(NewGraphDebugExtension(handler)))
	defer scope.Dispose()

	config := pumped.Provide(func(rc *pumped.ResolveContext) (string, error) {
		return "config", nil
	}).Named("Config")

	failingService1 := pumped.Derive(config.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "", fmt.Errorf("authentication service unavailable")
	}).Named("AuthService")

	failingService2 := pumped.Derive(config.Reactive(), func(rc *pumped.ResolveContext, realized any) (string, error) {
		return "", fmt.Errorf("payment gateway timeout")
	}).Named("PaymentService")

	aggregateService := pumped.DeriveTuple([]pumped.Dependency{failingService1.Reactive(), failingService2.Reactive()}, func(rc *pumped.ResolveContext, realized []any) (string, error) {
		return "aggregate", nil
	}).Named("AggregateService")

	_, err := pumped.Resolve(scope, aggregateService)
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	t.Logf("demonstrated multiple potential failure points in a dependency graph")
}
