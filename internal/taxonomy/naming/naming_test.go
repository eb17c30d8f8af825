package naming

import "testing"

func TestIsValidName(t *testing.T) {
	valid := []string{
		"ORDER_STATUS",
		"ab",
		"Order Status",
		"track-order",
		"a1 b2-c3",
	}
	for _, n := range valid {
		if !IsValidName(n) {
			t.Errorf("IsValidName(%q) = false, want true", n)
		}
	}

	invalid := []string{
		"",
		"a",                    // too short
		" leading",
		"trailing ",
		"-leading",
		"trailing-",
		"double  space",
		"double--dash",
		"mixed -seps",
		"comma,breaks tags",
		"emoji🙂",
		string(make([]byte, 65)),
	}
	for _, n := range invalid {
		if IsValidName(n) {
			t.Errorf("IsValidName(%q) = true, want false", n)
		}
	}
}

func TestValidateAll(t *testing.T) {
	bad := ValidateAll([]string{"ok_name", "", "also ok", "bad--name"})
	if len(bad) != 2 || bad[0] != "" || bad[1] != "bad--name" {
		t.Fatalf("ValidateAll = %v", bad)
	}
}
