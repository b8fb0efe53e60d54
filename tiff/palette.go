package tiff

// color looks up a palette entry, clamping the index into the table.
// Entries are 16-bit per channel as stored in the ColorMap tag.
func (p *Page) color(index int) (red, green, blue uint16) {
	if len(p.ColorMap) == 0 {
		return 0, 0, 0
	}
	if index < 0 {
		index = 0
	}
	if index >= len(p.ColorMap) {
		index = len(p.ColorMap) - 1
	}
	c := p.ColorMap[index]
	return c[0], c[1], c[2]
}
