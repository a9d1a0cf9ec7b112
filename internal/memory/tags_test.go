package memory

import (
	"reflect"
	"testing"
)

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "just words", nil},
		{"lowercased and deduped", "#Beach day at the #beach with #Sunset", []string{"beach", "sunset"}},
		{"stops at punctuation", "dinner#date! #first-kiss", []string{"date", "first"}},
		{"underscores kept", "#road_trip", []string{"road_trip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTags(tt.content); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractTags(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestExtractTagsCap(t *testing.T) {
	content := ""
	for i := 0; i < maxTags+5; i++ {
		content += " #t" + string(rune('a'+i))
	}
	if got := ExtractTags(content); len(got) != maxTags {
		t.Errorf("got %d tags, want %d", len(got), maxTags)
	}
}

func TestTagsValueScan(t *testing.T) {
	v, err := Tags{"beach", "sunset"}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != `{"beach","sunset"}` {
		t.Errorf("Value = %v", v)
	}

	empty, _ := Tags(nil).Value()
	if empty != "{}" {
		t.Errorf("nil Value = %v, want {}", empty)
	}

	var got Tags
	if err := got.Scan([]byte("{a,b}")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !reflect.DeepEqual(got, Tags{"a", "b"}) {
		t.Errorf("Scan = %v", got)
	}
	if err := got.Scan("{}"); err != nil || got == nil || len(got) != 0 {
		t.Errorf("Scan({}) = %v, %v", got, err)
	}
}
