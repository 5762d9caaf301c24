package enums

import "fmt"

// ContributionType describes how a contact funds their membership.
type ContributionType string

const (
	ContributionTypeNone      ContributionType = "none"
	ContributionTypeManual    ContributionType = "manual"
	ContributionTypeAutomatic ContributionType = "automatic"
	ContributionTypeGift      ContributionType = "gift"
)

var validContributionTypes = []ContributionType{
	ContributionTypeNone,
	ContributionTypeManual,
	ContributionTypeAutomatic,
	ContributionTypeGift,
}

// String implements fmt.Stringer.
func (c ContributionType) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ContributionType) IsValid() bool {
	for _, candidate := range validContributionTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseContributionType converts raw input into a ContributionType.
func ParseContributionType(value string) (ContributionType, error) {
	for _, candidate := range validContributionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contribution type %q", value)
}
