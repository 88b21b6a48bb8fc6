package core

import "testing"

func TestBounds_IsEmpty(t *testing.T) {
	if !(Bounds{Width: 0, Height: 10}).IsEmpty() {
		t.Error("zero width bounds should be empty")
	}
	if (Bounds{Width: 1, Height: 1}).IsEmpty() {
		t.Error("1x1 bounds should not be empty")
	}
}
