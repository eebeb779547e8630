package mercator

// Source rasters are stored as super-tiles of up to 65536x65536 pixels
// per zoom level, equivalent to 256x256 blocks of 256x256 pixels each.
// Objects are named {row}R_{col}C counting from the top-left corner of
// the zoom level.
const (
	SuperTileBlocks = 256
	SuperTileSize   = SuperTileBlocks * TileSize
)

// Window is a pixel read region inside a super-tile object.
type Window struct {
	ColOff, RowOff int
	Width, Height  int
}

// TileLocation returns the super-tile (row, col) holding the x/y output
// tile together with the pixel offsets of its 256x256 block.
func TileLocation(x, y int) (row, col, rowOff, colOff int) {
	row = y / SuperTileBlocks
	col = x / SuperTileBlocks
	rowOff = (y - row*SuperTileBlocks) * TileSize
	colOff = (x - col*SuperTileBlocks) * TileSize
	return row, col, rowOff, colOff
}

// SourceWindow maps an output tile at zoom z onto a read window in the
// source pyramid. When z exceeds maxZoom (over-zoom), the window shrinks
// inside the maxZoom super-tile and the caller upsamples the result back
// to a full tile. A window never spans more than one super-tile.
func SourceWindow(z, x, y, maxZoom int) (srcZ, row, col int, win Window) {
	srcZ = z
	dz := 0
	if maxZoom > 0 && maxZoom < z {
		srcZ = maxZoom
		dz = z - maxZoom
		if dz > 8 {
			// A single source pixel already covers the whole output tile.
			dz = 8
			srcZ = z - 8
		}
	}

	// Global pixel origin of the output tile in the srcZ pixel grid.
	gx := (x * TileSize) >> dz
	gy := (y * TileSize) >> dz
	size := TileSize >> dz
	if size < 1 {
		size = 1
	}

	row = gy / SuperTileSize
	col = gx / SuperTileSize
	win = Window{
		ColOff: gx - col*SuperTileSize,
		RowOff: gy - row*SuperTileSize,
		Width:  size,
		Height: size,
	}
	return srcZ, row, col, win
}
