package stan

// Signing key material, stored masked. The HMAC key is derived by
// signer.New.
var (
	keyMaskA = []byte{
		0x90, 0x64, 0x95, 0x01, 0x02, 0x08, 0x24, 0xd0, 0xd1, 0x33, 0x67, 0x83, 0xf0, 0x42, 0xd6, 0x14,
		0xc3, 0xaa, 0x2c, 0xc2, 0x11, 0xa1, 0x76, 0x47, 0x69, 0x2a, 0x4c, 0x74, 0xe6, 0x57, 0xe3, 0x28,
		0x73, 0x05, 0x3e, 0xc7, 0x42, 0x07, 0xfb, 0x7d, 0xee, 0x7b, 0x47, 0xdc, 0xb3, 0x1d, 0xa5, 0x88,
		0x10, 0xd6, 0x75, 0x0a, 0x64, 0xde, 0x29, 0x3c, 0x67, 0x02, 0x79, 0x82, 0xd9, 0x4b, 0xdc, 0x64,
		0x3b, 0x23, 0xc1, 0x16, 0x75, 0x1b, 0x4a, 0x32, 0x55, 0x28, 0x27, 0x1f, 0xb4, 0x51, 0x22, 0x9b,
		0xac, 0xca, 0x47, 0xa2, 0xca, 0xea, 0x5b, 0xb0, 0xc7, 0xcf, 0x83, 0xe5, 0x7d, 0x69, 0x09, 0xe3,
		0xbc, 0xea, 0x3d, 0x21, 0x11, 0x71, 0xde, 0xad, 0xb6, 0x78, 0x22, 0x50, 0x87, 0xdb, 0x08, 0x61,
		0xb0, 0x3e, 0x89, 0x7e, 0xde, 0x8b, 0x88, 0x4d, 0xf3, 0x25, 0x0b, 0xea, 0x52, 0xf4, 0xde, 0x2c,
	}
	keyMaskB = []byte{
		0x78, 0x5f, 0x34, 0xaf, 0x8b, 0x9b, 0x97, 0x23, 0x27, 0xb8, 0x8d, 0x1b, 0x37, 0xd7, 0x66, 0xad,
		0x02, 0x25, 0x8d, 0xa4, 0xec, 0xd9, 0xad, 0xc2, 0x5e, 0x43, 0xc3, 0x18, 0xdd, 0x42, 0xe9, 0x0b,
		0xe2, 0x5b, 0x21, 0xf9, 0xe1, 0x36, 0x58, 0x36, 0x76, 0x65, 0x1f, 0xf8, 0x0b, 0xd0, 0xce, 0xe2,
		0x44, 0x14, 0x8f, 0x25, 0x68, 0x9f, 0xb8, 0x16, 0x35, 0xb3, 0x68, 0x98, 0xaa, 0x1d, 0x1a, 0x06,
		0xa3, 0x2d, 0x57, 0xc1, 0x88, 0xe2, 0x80, 0xf5, 0xe7, 0xee, 0x9a, 0xd3, 0x47, 0x86, 0xe8, 0x63,
		0x23, 0x36, 0xaa, 0x80, 0x01, 0xda, 0xf9, 0x46, 0xb6, 0x91, 0x7d, 0xd3, 0x10, 0x2b, 0x76, 0xb1,
		0x40, 0x80, 0x6f, 0x49, 0xea, 0x16, 0x15, 0xa5, 0x43, 0x17, 0x0f, 0x05, 0x0b, 0x46, 0x30, 0x61,
		0x86, 0xb9, 0x0b, 0x1c, 0xa7, 0x8c, 0x7b, 0x51, 0xf0, 0xf7, 0x4d, 0xbb, 0x17, 0xf3, 0x59, 0x36,
	}
)
