package catalog

// Builtin returns the patch sets compiled into the tool, in lookup order.
// Each call returns fresh slices so callers cannot alter the shared table.
func Builtin() []ModificationSet {
	return []ModificationSet{
		{
			VersionID: "ca430037",
			Modifications: []Modification{
				{Name: RoleJump, Offset: 0x54E8C, Original: []byte{0xDA, 0x0B, 0x5A, 0x1C}, Patched: []byte{0xDA, 0x0D, 0x0C, 0x35}},
				{Name: RoleCode, Offset: 0x5350C, Original: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Patched: []byte{0xDA, 0x0B, 0xE6, 0x39, 0x6E, 0x18, 0xDB, 0x00}},
				{Name: RoleDTC, Offset: 0x7099B, Original: []byte{0x02}, Patched: []byte{0x00}},
			},
		},
		{
			VersionID:       "ca430056",
			HardwareVariant: "5WK90015",
			Modifications: []Modification{
				{Name: RoleJump, Offset: 0x57D76, Original: []byte{0xDA, 0x0B, 0x40, 0x20}, Patched: []byte{0xDA, 0x0D, 0xB2, 0x3B}},
				{Name: RoleCode, Offset: 0x53BB2, Original: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Patched: []byte{0xDA, 0x0B, 0xB8, 0x3F, 0x9E, 0x19, 0xDB, 0x00}},
				{Name: RoleDTC, Offset: 0x70A14, Original: []byte{0x02}, Patched: []byte{0x00}},
			},
		},
		{
			VersionID:       "ca430056",
			HardwareVariant: "5WK90017",
			Modifications: []Modification{
				{Name: RoleJump, Offset: 0x57D76, Original: []byte{0xDA, 0x0B, 0x40, 0x20}, Patched: []byte{0xDA, 0x0D, 0xB2, 0x3B}},
				{Name: RoleCode, Offset: 0x53BB2, Original: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Patched: []byte{0xDA, 0x0B, 0xB8, 0x3F, 0x9E, 0x19, 0xDB, 0x00}},
				{Name: RoleDTC, Offset: 0x70A14, Original: []byte{0x02}, Patched: []byte{0x00}},
			},
		},
		{
			VersionID: "ca430066",
			Modifications: []Modification{
				{Name: RoleJump, Offset: 0x600D8, Original: []byte{0xDA, 0x0A, 0x64, 0xDD}, Patched: []byte{0xDA, 0x0D, 0xF8, 0x3B}},
				{Name: RoleCode, Offset: 0x53BF8, Original: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Patched: []byte{0xDA, 0x0A, 0xDC, 0xFC, 0x0E, 0x1A, 0xDB, 0x00}},
				{Name: RoleDTC, Offset: 0x70A77, Original: []byte{0x02}, Patched: []byte{0x00}},
			},
		},
		{
			VersionID: "ca430069",
			Modifications: []Modification{
				{Name: RoleJump, Offset: 0x600D8, Original: []byte{0xDA, 0x0A, 0x6C, 0xDD}, Patched: []byte{0xDA, 0x0D, 0xF8, 0x3B}},
				{Name: RoleCode, Offset: 0x53BF8, Original: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Patched: []byte{0xDA, 0x0A, 0xE4, 0xFC, 0x0E, 0x1A, 0xDB, 0x00}},
				{Name: RoleDTC, Offset: 0x70A6E, Original: []byte{0x02}, Patched: []byte{0x00}},
			},
		},
	}
}
