package wait

import (
	"regexp"
	"testing"
	"time"
)

func TestStrategy_Kinds(t *testing.T) {
	cases := []struct {
		strategy Strategy
		want     Kind
	}{
		{ForHealthCheck(), KindHealthCheck},
		{ForHealthCheck("pg_isready"), KindHealthCheck},
		{ForLog(regexp.MustCompile(`ready`)), KindLog},
		{ForHTTP(80, "/health"), KindHTTP},
		{ForTCP(6379), KindTCP},
		{ForExit(0), KindExit},
	}
	for _, tc := range cases {
		if got := tc.strategy.Kind(); got != tc.want {
			t.Errorf("Kind() = %q, want %q", got, tc.want)
		}
	}
}

func TestStrategy_HTTPDefaultsTo200(t *testing.T) {
	s := ForHTTP(80, "/health")
	if len(s.codes) != 1 || s.codes[0] != 200 {
		t.Errorf("expected default codes [200], got %v", s.codes)
	}
}

func TestStrategy_OverridesReturnCopies(t *testing.T) {
	base := ForTCP(5432)
	modified := base.WithTimeout(time.Minute).WithInterval(time.Second)

	if base.timeout != 0 || base.interval != 0 {
		t.Error("base strategy mutated by With* methods")
	}
	if modified.timeout != time.Minute || modified.interval != time.Second {
		t.Errorf("override lost: timeout=%v interval=%v", modified.timeout, modified.interval)
	}
}

func TestStrategy_WithTLS(t *testing.T) {
	s := ForHTTP(443, "/", 204).WithTLS(true)
	if !s.https || !s.insecure {
		t.Errorf("WithTLS(true) not applied: https=%v insecure=%v", s.https, s.insecure)
	}
}

func TestStrategy_Describe(t *testing.T) {
	cases := []struct {
		strategy Strategy
		want     string
	}{
		{ForTCP(5432), `tcp port 5432 accepts connections`},
		{ForExit(0), `container exits with code 0`},
		{ForHealthCheck(), `engine health check reports healthy`},
		{ForHTTP(80, "/health"), `http GET :80/health returns [200]`},
	}
	for _, tc := range cases {
		if got := tc.strategy.Describe(); got != tc.want {
			t.Errorf("Describe() = %q, want %q", got, tc.want)
		}
	}
}
