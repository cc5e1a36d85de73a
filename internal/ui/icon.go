package ui

// iconBytes is the 16x16 PNG shown in the menu bar.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x2c, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x60, 0x18, 0x1e, 0xe0,
	0x45, 0x2c, 0xcb, 0x7f, 0x72, 0x30, 0x7d, 0x0d, 0x00, 0x01, 0xb2, 0x0c,
	0x40, 0x06, 0x24, 0x19, 0x80, 0x0d, 0xd0, 0xd7, 0x00, 0x8a, 0xbd, 0x40,
	0xb5, 0x40, 0xa4, 0x4f, 0x3a, 0x18, 0xda, 0x00, 0x00, 0xb1, 0x3e, 0x5e,
	0x18, 0x44, 0x3b, 0x43, 0x0d, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
	0x44, 0xae, 0x42, 0x60, 0x82,
}
