package enums

import "fmt"

// ContributionPeriod is the billing cadence of a recurring contribution.
type ContributionPeriod string

const (
	ContributionPeriodMonthly  ContributionPeriod = "monthly"
	ContributionPeriodAnnually ContributionPeriod = "annually"
)

var validContributionPeriods = []ContributionPeriod{
	ContributionPeriodMonthly,
	ContributionPeriodAnnually,
}

// String implements fmt.Stringer.
func (c ContributionPeriod) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ContributionPeriod) IsValid() bool {
	for _, candidate := range validContributionPeriods {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseContributionPeriod converts raw input into a ContributionPeriod.
func ParseContributionPeriod(value string) (ContributionPeriod, error) {
	for _, candidate := range validContributionPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contribution period %q", value)
}

// MonthsPerPeriod returns how many monthly units one billing period covers.
func (c ContributionPeriod) MonthsPerPeriod() int {
	if c == ContributionPeriodAnnually {
		return 12
	}
	return 1
}
