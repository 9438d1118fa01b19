package storage

import (
	"math"
)

// Great circle distance in km between two lat/lon pairs.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	const earthRadiusKm = 6371

	aLatRad := aLat * math.Pi / 180
	aLonRad := aLon * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	bLonRad := bLon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusKm
}

// Weekday bitmask as seven 0/1 flags, monday first.
func weekdayFlags(weekday int8) [7]int {
	flags := [7]int{}
	for i := 0; i < 7; i++ {
		// monday is 1, sunday is 0
		if weekday&(1<<((i+1)%7)) != 0 {
			flags[i] = 1
		}
	}
	return flags
}
