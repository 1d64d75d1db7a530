package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

func TestTCPChecker_Reachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(listener.Addr().String())
	result := checker.Check(context.Background())

	if result.Status != types.CheckPassed {
		t.Errorf("expected passed, got %s: %s", result.Status, result.Message)
	}
}

func TestTCPChecker_Unreachable(t *testing.T) {
	checker := NewTCPChecker("127.0.0.1:1").WithTimeout(time.Second)
	result := checker.Check(context.Background())

	if result.Status != types.CheckFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestTCPChecker_Type(t *testing.T) {
	checker := NewTCPChecker("localhost:5432")
	if checker.Type() != CheckTypeTCP {
		t.Errorf("expected tcp, got %s", checker.Type())
	}
}
