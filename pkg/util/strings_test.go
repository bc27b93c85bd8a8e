package util

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	cases := map[string][]string{
		"":                      nil,
		"  ":                    nil,
		"Pork_Belly":            {"Pork_Belly"},
		" Pork_Belly, Beef_Rib": {"Pork_Belly", "Beef_Rib"},
		",Pork_Belly,, ,":       {"Pork_Belly"},
	}
	for in, want := range cases {
		got := SplitCSV(in)
		if len(want) == 0 {
			if len(got) != 0 {
				t.Fatalf("SplitCSV(%q) = %v, want empty", in, got)
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("SplitCSV(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsDigits(t *testing.T) {
	if !IsDigits("2024") || IsDigits("") || IsDigits("12a") {
		t.Fatal("unexpected IsDigits result")
	}
	if ParseIntDefault("x", 7) != 7 || ParseIntDefault("", 7) != 7 || ParseIntDefault("3", 7) != 3 {
		t.Fatal("unexpected ParseIntDefault result")
	}
}
