package mnet

import "testing"

func TestBufferPool_GetReturnsJumboSizedBuffer(t *testing.T) {
	buf := getBuffer()
	defer putBuffer(buf)
	if len(*buf) != 9000 {
		t.Errorf("len(buf) = %d, want 9000", len(*buf))
	}
}

func TestBufferPool_PutAllowsReuse(t *testing.T) {
	buf := getBuffer()
	putBuffer(buf)
	again := getBuffer()
	defer putBuffer(again)
	if len(*again) != 9000 {
		t.Errorf("reused buffer len = %d, want 9000", len(*again))
	}
}
