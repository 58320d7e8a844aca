// Package domain holds calendar primitives shared by the commitment, proof and
// eligibility packages.
package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf returns the calendar date of t in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: int(m), Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// HasHadBirthday reports whether the anniversary of birth has occurred in the
// reference year. A reference date equal to the birthday counts as occurred.
func HasHadBirthday(birth, ref Date) bool {
	if ref.Month != birth.Month {
		return ref.Month > birth.Month
	}
	return ref.Day >= birth.Day
}

// AgeInYears returns the age in whole years at ref. It subtracts one from the
// year difference unless the birthday has already occurred in ref's year, so a
// Feb 29 birthday is reached on Mar 1 in non-leap years.
func AgeInYears(birth, ref Date) int {
	age := ref.Year - birth.Year
	if !HasHadBirthday(birth, ref) {
		age--
	}
	return age
}

// IsAtLeast reports whether the age at ref is at least years.
func IsAtLeast(birth, ref Date, years int) bool {
	return AgeInYears(birth, ref) >= years
}
