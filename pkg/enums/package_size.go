package enums

import "fmt"

// PackageSize buckets a package into the tiers couriers filter on.
type PackageSize string

const (
	PackageSizeSmall      PackageSize = "Small"
	PackageSizeMedium     PackageSize = "Medium"
	PackageSizeLarge      PackageSize = "Large"
	PackageSizeExtraLarge PackageSize = "Extra Large"
)

var validPackageSizes = []PackageSize{
	PackageSizeSmall,
	PackageSizeMedium,
	PackageSizeLarge,
	PackageSizeExtraLarge,
}

// String implements fmt.Stringer.
func (p PackageSize) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PackageSize.
func (p PackageSize) IsValid() bool {
	for _, candidate := range validPackageSizes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePackageSize converts raw input into a PackageSize.
func ParsePackageSize(value string) (PackageSize, error) {
	for _, candidate := range validPackageSizes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package size %q", value)
}
