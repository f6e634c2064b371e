package storage

import (
	"errors"
	"testing"
	"time"
)

func TestCursor_EncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		c    Cursor
	}{
		{
			name: "full position",
			c:    Cursor{LastPlayed: time.Date(2024, 2, 15, 10, 30, 0, 0, time.UTC), Region: 2, Realm: 1, ID: 12345},
		},
		{
			name: "zero values",
			c:    Cursor{},
		},
		{
			name: "large id",
			c:    Cursor{Region: 5, Realm: 2, ID: 9223372036854775807},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.c.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := DecodeCursor(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !decoded.LastPlayed.Equal(tt.c.LastPlayed) {
				t.Errorf("LastPlayed: got %v, want %v", decoded.LastPlayed, tt.c.LastPlayed)
			}
			if decoded.Region != tt.c.Region || decoded.Realm != tt.c.Realm || decoded.ID != tt.c.ID {
				t.Errorf("position: got %+v, want %+v", decoded, tt.c)
			}
		})
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, s := range []string{"!!!not-base64", "bm90IGpzb24="} {
		_, err := DecodeCursor(s)
		if !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("DecodeCursor(%q): got %v, want ErrInvalidCursor", s, err)
		}
	}
}
