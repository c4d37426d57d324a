//go:build !metrics

package metrics

import "time"

func IncRunsStarted(string)                    {}
func IncRunsFailed(string)                     {}
func ObserveRunDuration(string, time.Duration) {}
func SetRunTrades(string, int)                 {}
func SetRunTotalR(string, float64)             {}
func SetRunRejections(string, int)             {}
