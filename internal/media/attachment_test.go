package media

import "testing"

func TestKindFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{"image/jpeg", KindPhoto},
		{"video/mp4", KindVideo},
		{" Video/QuickTime", KindVideo},
		{"", KindPhoto},
		{"application/octet-stream", KindPhoto},
	}
	for _, tt := range tests {
		if got := KindFor(tt.contentType); got != tt.want {
			t.Errorf("KindFor(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestTotalSizeAndKeys(t *testing.T) {
	items := []Attachment{
		{Key: "a", SizeBytes: 10},
		{Key: "", SizeBytes: 5},
		{Key: "c", SizeBytes: 7},
	}

	if got := TotalSize(items...); got != 22 {
		t.Errorf("TotalSize = %d, want 22", got)
	}
	if got := TotalSize(); got != 0 {
		t.Errorf("TotalSize() = %d, want 0", got)
	}

	keys := Keys(items...)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("Keys = %v, want [a c]", keys)
	}
}

func TestValidate(t *testing.T) {
	if err := (Attachment{SizeBytes: -1}).Validate(); err != ErrNegativeSize {
		t.Errorf("Validate(-1) = %v, want ErrNegativeSize", err)
	}
	if err := (Attachment{SizeBytes: 0}).Validate(); err != nil {
		t.Errorf("Validate(0) = %v, want nil", err)
	}
}
