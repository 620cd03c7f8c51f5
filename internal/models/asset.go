package models

import "fmt"

type AssetKind int

const (
	AssetLocked AssetKind = iota + 1
	AssetClean
)

func (k AssetKind) String() string {
	switch k {
	case AssetLocked:
		return "locked"
	case AssetClean:
		return "clean"
	default:
		return fmt.Sprintf("AssetKind(%d)", int(k))
	}
}

// AssetRef is either the locked preview of an image or its clean original.
// Only the unlock gate builds these; callers switch on Kind instead of
// reading Image.URL or Image.StoragePath themselves.
type AssetRef struct {
	Kind AssetKind
	Ref  string
}

func LockedAsset(ref string) AssetRef {
	return AssetRef{Kind: AssetLocked, Ref: ref}
}

func CleanAsset(ref string) AssetRef {
	return AssetRef{Kind: AssetClean, Ref: ref}
}

func (a AssetRef) Locked() bool {
	return a.Kind == AssetLocked
}
