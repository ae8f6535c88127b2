package config

import (
	"strings"
	"testing"
)

func TestParseValidConfig(t *testing.T) {
	input := `# mprpc config
rpcserverip=127.0.0.1
rpcserverport=8000

zookeeperip=127.0.0.1
zookeeperport=2379
`
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.AdvertiseAddr() != "127.0.0.1:8000" {
		t.Errorf("AdvertiseAddr mismatch: got %s", cfg.AdvertiseAddr())
	}
	if cfg.CoordinatorAddr() != "127.0.0.1:2379" {
		t.Errorf("CoordinatorAddr mismatch: got %s", cfg.CoordinatorAddr())
	}
}

func TestParseMissingKey(t *testing.T) {
	input := `rpcserverip=127.0.0.1
rpcserverport=8000
zookeeperip=127.0.0.1
`
	_, err := Parse(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for missing zookeeperport")
	}
}

func TestParseMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("not-a-key-value-line\n"))
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}
