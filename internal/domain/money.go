package domain

import "math"

// MoneyTolerance is the largest difference at which two monetary amounts are
// still considered equal (one cent).
const MoneyTolerance = 0.01

// RoundMoney rounds an amount to 2 decimal places using round-half-up
func RoundMoney(amount float64) float64 {
	return math.Floor(amount*100+0.5) / 100
}

// MoneyEqual compares two amounts within MoneyTolerance
func MoneyEqual(a, b float64) bool {
	return math.Abs(a-b) < MoneyTolerance
}
