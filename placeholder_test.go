package tilecache

import "testing"

func TestPlaceholderDimensions(t *testing.T) {
	t.Parallel()

	for _, size := range []int{128, 256, 512} {
		loading := newLoadingImage(size)
		empty := newEmptyImage(size)

		if loading.Bounds().Dx() != size || loading.Bounds().Dy() != size {
			t.Fatalf("loading placeholder bounds = %v, want %dx%d", loading.Bounds(), size, size)
		}
		if empty.Bounds().Dx() != size || empty.Bounds().Dy() != size {
			t.Fatalf("empty placeholder bounds = %v, want %dx%d", empty.Bounds(), size, size)
		}
	}
}

func TestPlaceholdersAreDistinguishable(t *testing.T) {
	t.Parallel()

	loading := newLoadingImage(16)
	empty := newEmptyImage(16)

	_, _, _, la := loading.At(0, 0).RGBA()
	if la == 0 {
		t.Fatal("loading placeholder should carry a visible pattern")
	}

	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if _, _, _, a := empty.At(x, y).RGBA(); a != 0 {
				t.Fatalf("empty placeholder must be fully transparent, pixel (%d,%d) is not", x, y)
			}
		}
	}
}
