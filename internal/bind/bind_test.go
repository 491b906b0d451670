package bind

import (
	"reflect"
	"sort"
	"testing"
)

func TestExpandLiteral(t *testing.T) {
	got, err := Expand("127.0.0.1", "2525")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"127.0.0.1:2525"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandMultipleHostsLastPortReused(t *testing.T) {
	got, err := Expand("127.0.0.1,::1", "2525")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"127.0.0.1:2525", "[::1]:2525"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandColonPortList(t *testing.T) {
	got, err := Expand("127.0.0.1", "2525:3535")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"127.0.0.1:2525", "127.0.0.1:3535"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandPositionalPorts(t *testing.T) {
	got, err := Expand("127.0.0.1,::1", "2525,4646")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"127.0.0.1:2525", "[::1]:4646"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandWildcardIncludesLoopback(t *testing.T) {
	got, err := Expand("*", "2525")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	sort.Strings(got)
	found := false
	for _, a := range got {
		if a == "127.0.0.1:2525" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expand(\"*\", \"2525\") = %v, want it to include 127.0.0.1:2525", got)
	}
}

func TestExpandRejectsEmptyToken(t *testing.T) {
	if _, err := Expand("127.0.0.1,,::1", "2525"); err == nil {
		t.Errorf("Expand with empty host token = nil error, want error")
	}
	if _, err := Expand("127.0.0.1", "2525,,3535"); err == nil {
		t.Errorf("Expand with empty port token = nil error, want error")
	}
}

func TestExpandRejectsNonNumericPort(t *testing.T) {
	if _, err := Expand("127.0.0.1", "smtp"); err == nil {
		t.Errorf("Expand with non-numeric port = nil error, want error")
	}
}

func TestExpandResolvesHostname(t *testing.T) {
	got, err := Expand("localhost", "2525")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) == 0 {
		t.Errorf("Expand(\"localhost\", ...) returned no addresses")
	}
}
