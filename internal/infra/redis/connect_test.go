package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	l := logger.InitializeNopLogger()

	cli, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()}, l)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	Disconnect(context.Background(), cli, l)
}

func TestConnectUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), config.RedisConfig{Addr: addr}, logger.InitializeNopLogger())
	if err == nil {
		t.Fatalf("expected error for closed server")
	}
}
