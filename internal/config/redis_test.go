package config

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestAsynqRedisOptHostPort(t *testing.T) {
	cfg := &Config{RedisURL: "localhost:6379", RedisPassword: "s3cret", RedisDB: 2}

	opt, err := AsynqRedisOpt(cfg)
	if err != nil {
		t.Fatalf("AsynqRedisOpt: %v", err)
	}
	client, ok := opt.(asynq.RedisClientOpt)
	if !ok {
		t.Fatalf("opt is %T, want asynq.RedisClientOpt", opt)
	}
	if client.Addr != "localhost:6379" || client.Password != "s3cret" || client.DB != 2 {
		t.Errorf("opt = %+v", client)
	}
}

// A redis:// URL must reach the broker as a dialable host:port, not as the
// literal URL string.
func TestAsynqRedisOptURL(t *testing.T) {
	cfg := &Config{RedisURL: "redis://example.com:6380/1"}

	opt, err := AsynqRedisOpt(cfg)
	if err != nil {
		t.Fatalf("AsynqRedisOpt: %v", err)
	}
	client, ok := opt.(asynq.RedisClientOpt)
	if !ok {
		t.Fatalf("opt is %T, want asynq.RedisClientOpt", opt)
	}
	if client.Addr != "example.com:6380" {
		t.Errorf("addr = %q, want host:port form", client.Addr)
	}
	if client.DB != 1 {
		t.Errorf("db = %d, want 1", client.DB)
	}
}

func TestAsynqRedisOptTLSURL(t *testing.T) {
	cfg := &Config{RedisURL: "rediss://example.com:6380"}

	opt, err := AsynqRedisOpt(cfg)
	if err != nil {
		t.Fatalf("AsynqRedisOpt: %v", err)
	}
	client, ok := opt.(asynq.RedisClientOpt)
	if !ok {
		t.Fatalf("opt is %T, want asynq.RedisClientOpt", opt)
	}
	if client.Addr != "example.com:6380" {
		t.Errorf("addr = %q", client.Addr)
	}
	if client.TLSConfig == nil {
		t.Error("rediss URL must carry TLS config to the broker")
	}
}

func TestAsynqRedisOptBadURL(t *testing.T) {
	cfg := &Config{RedisURL: "redis://bad url"}
	if _, err := AsynqRedisOpt(cfg); err == nil {
		t.Error("malformed URL must not build a broker option")
	}
}
